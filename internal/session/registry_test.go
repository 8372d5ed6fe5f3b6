package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/model"
	"github.com/bananaslides/deckwizard/internal/store"
)

// fakeBackend serves GetProject and CreateProject. Other calls panic through
// the nil embedded interfaces.
type fakeBackend struct {
	store.Backend
	client.FileAPI

	mu       sync.Mutex
	projects map[string]*model.Project
	created  int
}

func newFakeBackend(projects ...*model.Project) *fakeBackend {
	f := &fakeBackend{projects: make(map[string]*model.Project)}
	for _, p := range projects {
		f.projects[p.ID] = p
	}
	return f
}

func (f *fakeBackend) CreateProject(_ context.Context, req *client.CreateProjectRequest) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	p := &model.Project{ID: fmt.Sprintf("new%d", f.created), CreationType: req.CreationType, IdeaPrompt: req.IdeaPrompt}
	f.projects[p.ID] = p
	return p.Clone(), nil
}

func (f *fakeBackend) GetProject(_ context.Context, id string) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, &client.RequestError{StatusCode: 404, Message: "project not found"}
	}
	return p.Clone(), nil
}

func TestRegistry_GetReusesSession(t *testing.T) {
	r := NewRegistry(newFakeBackend(), nil, Options{})
	t.Cleanup(r.Close)
	ctx := context.Background()

	a := r.Get(ctx, "s1")
	b := r.Get(ctx, "s1")
	c := r.Get(ctx, "s2")
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, r.Len())

	_, ok := r.Lookup("s3")
	assert.False(t, ok)
}

func TestRegistry_SessionsKeepSeparateProjects(t *testing.T) {
	prefs := store.NewMemoryPrefs()
	r := NewRegistry(newFakeBackend(), prefs, Options{})
	t.Cleanup(r.Close)
	ctx := context.Background()

	s1 := r.Get(ctx, "s1")
	_, err := s1.Store.InitializeProject(ctx, model.CreationTypeIdea, "first", nil, "")
	require.NoError(t, err)
	s2 := r.Get(ctx, "s2")
	_, err = s2.Store.InitializeProject(ctx, model.CreationTypeIdea, "second", nil, "")
	require.NoError(t, err)

	id1, err := s1.Store.LastProjectID(ctx)
	require.NoError(t, err)
	id2, err := s2.Store.LastProjectID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new1", id1)
	assert.Equal(t, "new2", id2)
}

func TestRegistry_OnSnapshot(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	r := NewRegistry(newFakeBackend(), nil, Options{OnSnapshot: func(id string, snap store.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Project != nil {
			seen = append(seen, id+"/"+snap.Project.ID)
		}
	}})
	t.Cleanup(r.Close)
	ctx := context.Background()

	_, err := r.Get(ctx, "s1").Store.InitializeProject(ctx, model.CreationTypeIdea, "idea", nil, "")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "s1/new1")
}

func TestRegistry_EvictIdle(t *testing.T) {
	r := NewRegistry(newFakeBackend(), nil, Options{IdleTTL: time.Minute})
	t.Cleanup(r.Close)
	ctx := context.Background()

	r.Get(ctx, "old")
	r.Get(ctx, "fresh")

	assert.Equal(t, 0, r.EvictIdle(time.Now()))
	assert.Equal(t, 2, r.EvictIdle(time.Now().Add(2*time.Minute)))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RestoreResumesPersistedSessions(t *testing.T) {
	prefs := store.NewMemoryPrefs()
	backend := newFakeBackend(&model.Project{
		ID:           "p1",
		CreationType: model.CreationTypeIdea,
		Pages:        []model.Page{{ID: "a", GeneratedImagePath: "/img/a.png"}},
	})
	ctx := context.Background()

	first := NewRegistry(backend, prefs, Options{})
	require.NoError(t, first.Get(ctx, "s1").Store.SyncProject(ctx, "p1"))
	first.Get(ctx, "empty")
	first.Close()

	second := NewRegistry(backend, prefs, Options{})
	t.Cleanup(second.Close)
	n, err := second.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	s, ok := second.Lookup("s1")
	require.True(t, ok)
	st := s.Wizard.State()
	assert.Equal(t, "p1", st.ProjectID)
	assert.Equal(t, 5, int(st.Step))

	_, ok = second.Lookup("empty")
	assert.False(t, ok)
}
