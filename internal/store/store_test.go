package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/model"
)

func deck(id string, pageIDs ...string) *model.Project {
	p := &model.Project{ID: id, CreationType: model.CreationTypeIdea, IdeaPrompt: "solar energy"}
	for i, pid := range pageIDs {
		p.Pages = append(p.Pages, model.Page{
			ID:             pid,
			OrderIndex:     i,
			OutlineContent: model.OutlineContent{Title: "Slide " + pid, Points: []string{"point"}},
		})
	}
	return p
}

func newTestStore(t *testing.T, api *fakeBackend) *Store {
	t.Helper()
	s := New(api, NewMemoryPrefs(), WithPolling(5*time.Millisecond, 2*time.Second))
	t.Cleanup(s.Close)
	return s
}

func loaded(t *testing.T, api *fakeBackend, p *model.Project) *Store {
	t.Helper()
	api.seed(p)
	s := newTestStore(t, api)
	require.NoError(t, s.SyncProject(context.Background(), p.ID))
	return s
}

func TestInitializeProject_IdeaThenOutline(t *testing.T) {
	api := newFakeBackend()
	api.outline = deck("", "a", "b", "c").Pages
	s := newTestStore(t, api)
	ctx := context.Background()

	var seenLoading bool
	unsubscribe := s.Subscribe(func(snap Snapshot) {
		if snap.IsGlobalLoading {
			seenLoading = true
		}
	})
	defer unsubscribe()

	p, err := s.InitializeProject(ctx, model.CreationTypeIdea, "  solar energy  ", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "solar energy", p.IdeaPrompt)
	assert.True(t, seenLoading)
	assert.False(t, s.IsGlobalLoading())

	id, err := s.LastProjectID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p1", id)

	require.NoError(t, s.GenerateOutline(ctx))
	assert.Equal(t, []string{"a", "b", "c"}, s.Current().PageIDs())
	assert.False(t, s.IsGlobalLoading())
}

func TestInitializeProject_Validation(t *testing.T) {
	api := newFakeBackend()
	s := newTestStore(t, api)

	_, err := s.InitializeProject(context.Background(), "slides", "x", nil, "")
	assert.True(t, client.IsValidation(err))

	_, err = s.InitializeProject(context.Background(), model.CreationTypeOutline, "   ", nil, "")
	assert.True(t, client.IsValidation(err))
	assert.Nil(t, s.Current())
}

func TestInitializeProject_CreationFailure(t *testing.T) {
	api := newFakeBackend()
	api.createErr = &client.RequestError{StatusCode: 500, Message: "db down"}
	s := newTestStore(t, api)

	_, err := s.InitializeProject(context.Background(), model.CreationTypeIdea, "solar", nil, "")
	var ce *CreationError
	require.True(t, errors.As(err, &ce))
	var re *client.RequestError
	assert.True(t, errors.As(err, &re))
	assert.False(t, s.IsGlobalLoading())
	assert.Nil(t, s.Current())
}

func TestInitializeProject_TemplateUploadFailureIsNotFatal(t *testing.T) {
	api := newFakeBackend()
	s := newTestStore(t, api)

	p, err := s.InitializeProject(context.Background(), model.CreationTypeIdea, "solar", &model.Upload{Filename: "t.png", Data: []byte{1}}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
}

func TestSyncProject_Idempotent(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a", "b"))

	first := s.Current()
	require.NoError(t, s.SyncProject(context.Background(), "p"))
	assert.Equal(t, first, s.Current())
}

func TestSyncProject_FailureKeepsState(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a", "b"))

	api.getErr = &client.RequestError{StatusCode: 502, Message: "bad gateway"}
	err := s.SyncProject(context.Background(), "p")
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, s.Current().PageIDs())
}

func TestReorderPages_Optimistic(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a", "b", "c", "d"))

	require.NoError(t, s.ReorderPages(context.Background(), []string{"c", "a", "b", "d"}))
	assert.Equal(t, []string{"c", "a", "b", "d"}, s.Current().PageIDs())
	assert.Equal(t, []string{"c", "a", "b", "d"}, api.project("p").PageIDs())
	for i, page := range s.Current().Pages {
		assert.Equal(t, i, page.OrderIndex)
	}
}

func TestReorderPages_RollbackOnFailure(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a", "b", "c"))
	api.reorderErr = &client.RequestError{StatusCode: 500, Message: "boom"}

	var orders [][]string
	var mu sync.Mutex
	s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		orders = append(orders, snap.Project.PageIDs())
		mu.Unlock()
	})

	err := s.ReorderPages(context.Background(), []string{"b", "c", "a"})
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, s.Current().PageIDs())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, orders, 2)
	assert.Equal(t, []string{"b", "c", "a"}, orders[0])
	assert.Equal(t, []string{"a", "b", "c"}, orders[1])
}

func TestReorderPages_RejectsNonPermutation(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a", "b", "c"))

	for _, order := range [][]string{{"a", "b"}, {"a", "b", "b"}, {"a", "b", "x"}} {
		err := s.ReorderPages(context.Background(), order)
		assert.True(t, client.IsValidation(err), "%v", order)
	}
	assert.Empty(t, api.reorderCalls)
}

func TestUpdatePageLocal_ThenSave(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a", "b"))

	patch := PagePatch{OutlineContent: &model.OutlineContent{Title: "Edited", Points: []string{"x", "y"}}}
	require.NoError(t, s.UpdatePageLocal("a", patch))

	page, ok := s.Page("a")
	require.True(t, ok)
	assert.Equal(t, "Edited", page.OutlineContent.Title)
	assert.Equal(t, "Slide a", api.project("p").Pages[0].OutlineContent.Title)

	require.NoError(t, s.SavePage(context.Background(), "a"))
	assert.Equal(t, "Edited", api.project("p").Pages[0].OutlineContent.Title)
	assert.Equal(t, []string{"x", "y"}, api.project("p").Pages[0].OutlineContent.Points)
}

func TestSavePage_RollsBackOnFailure(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a"))
	api.updateErr = &client.RequestError{StatusCode: 500, Message: "nope"}

	require.NoError(t, s.UpdatePageLocal("a", PagePatch{DescriptionContent: &model.DescriptionContent{Text: "draft"}}))
	require.NoError(t, s.UpdatePageLocal("a", PagePatch{DescriptionContent: &model.DescriptionContent{Text: "draft 2"}}))

	err := s.SavePage(context.Background(), "a")
	require.Error(t, err)
	page, _ := s.Page("a")
	assert.False(t, page.HasDescription())
}

func TestUpdatePageLocal_UnknownPage(t *testing.T) {
	api := newFakeBackend()
	s := newTestStore(t, api)
	assert.ErrorIs(t, s.UpdatePageLocal("a", PagePatch{}), ErrNoProject)

	s = loaded(t, api, deck("p", "a"))
	assert.ErrorIs(t, s.UpdatePageLocal("zz", PagePatch{}), ErrPageNotFound)
}

func TestDeleteAndAddPage(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a", "b", "c"))
	ctx := context.Background()

	require.NoError(t, s.DeletePageByID(ctx, "b"))
	assert.Equal(t, []string{"a", "c"}, s.Current().PageIDs())
	assert.Equal(t, 1, s.Current().Pages[1].OrderIndex)

	page, err := s.AddNewPage(ctx)
	require.NoError(t, err)
	ids := s.Current().PageIDs()
	require.Len(t, ids, 3)
	assert.Equal(t, page.ID, ids[2])
	assert.False(t, s.IsGlobalLoading())
}

func TestGenerateOutline_FailureClearsLoading(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a"))
	api.generateErr = &client.TimeoutError{Timeout: 5 * time.Minute}

	err := s.GenerateOutline(context.Background())
	require.Error(t, err)
	assert.True(t, client.IsTimeout(err))
	assert.False(t, s.IsGlobalLoading())
}

func TestRefineOutline(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a"))

	assert.True(t, client.IsValidation(s.RefineOutline(context.Background(), " ", nil)))
	require.NoError(t, s.RefineOutline(context.Background(), "shorter", nil))
	assert.Equal(t, "Slide a (shorter)", s.Current().Pages[0].OutlineContent.Title)
}

func TestGeneratePageDescription_DuplicateGuard(t *testing.T) {
	api := newFakeBackend()
	api.descGate = make(chan struct{})
	s := loaded(t, api, deck("p", "a", "b"))
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() { errCh <- s.GeneratePageDescription(ctx, "a") }()

	require.Eventually(t, func() bool {
		_, busy := s.PageDescriptionGeneratingTasks()["a"]
		return busy
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, s.GeneratePageDescription(ctx, "a"), ErrPageBusy)

	close(api.descGate)
	require.NoError(t, <-errCh)
	assert.Empty(t, s.PageDescriptionGeneratingTasks())
	page, _ := s.Page("a")
	assert.Equal(t, "generated a", page.DescriptionContent.String())
}

func TestGenerateImages_MarkersClearedByOwnTask(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a", "b", "c"))
	ctx := context.Background()

	require.NoError(t, s.GenerateImages(ctx, []string{"a", "b"}))
	markers := s.PageGeneratingTasks()
	assert.Equal(t, "task-1", markers["a"])
	assert.Equal(t, "task-1", markers["b"])
	page, _ := s.Page("a")
	assert.Equal(t, model.PageStatusGenerating, page.Status)

	// A second batch over the whole deck only claims the free page
	require.NoError(t, s.GenerateImages(ctx, nil))
	markers = s.PageGeneratingTasks()
	assert.Equal(t, "task-1", markers["a"])
	assert.Equal(t, "task-2", markers["c"])
	assert.Equal(t, []string{"c"}, api.imageRequests[1])

	assert.ErrorIs(t, s.GenerateImages(ctx, []string{"a"}), ErrPageBusy)

	api.finishTask("task-1", model.TaskStatusCompleted)
	require.Eventually(t, func() bool {
		m := s.PageGeneratingTasks()
		_, a := m["a"]
		_, c := m["c"]
		return !a && c
	}, time.Second, 5*time.Millisecond)

	api.finishTask("task-2", model.TaskStatusFailed)
	require.Eventually(t, func() bool {
		return len(s.PageGeneratingTasks()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestGenerateImages_FailureReleasesMarkers(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a"))
	api.imagesErr = &client.RequestError{StatusCode: 500, Message: "gpu busy"}

	require.Error(t, s.GenerateImages(context.Background(), nil))
	assert.Empty(t, s.PageGeneratingTasks())
	assert.False(t, s.IsGlobalLoading())
}

func TestGenerateDescriptions_ClaimsEveryPage(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a", "b"))

	require.NoError(t, s.GenerateDescriptions(context.Background()))
	assert.Len(t, s.PageDescriptionGeneratingTasks(), 2)

	api.finishTask("task-1", model.TaskStatusCompleted)
	require.Eventually(t, func() bool {
		return len(s.PageDescriptionGeneratingTasks()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestSetCurrentImageVersion_Resyncs(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a"))

	versions, err := s.ImageVersions(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, versions, 2)

	require.NoError(t, s.SetCurrentImageVersion(context.Background(), "a", "v1"))
	page, _ := s.Page("a")
	assert.Equal(t, "/images/v1.png", page.GeneratedImagePath)
}

func TestEditPageImage_RequiresInstruction(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a"))

	assert.True(t, client.IsValidation(s.EditPageImage(context.Background(), "a", EditImageInput{})))
	require.NoError(t, s.EditPageImage(context.Background(), "a", EditImageInput{Instruction: "warmer colors"}))
	assert.Contains(t, s.PageGeneratingTasks(), "a")
}

func TestClear(t *testing.T) {
	api := newFakeBackend()
	s := loaded(t, api, deck("p", "a"))

	require.NoError(t, s.Clear(context.Background()))
	assert.Nil(t, s.Current())
	id, err := s.LastProjectID(context.Background())
	require.NoError(t, err)
	assert.Empty(t, id)
}
