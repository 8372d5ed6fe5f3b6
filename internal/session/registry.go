package session

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/store"
	"github.com/bananaslides/deckwizard/internal/wizard"
)

// indexKey lists every session id ever issued, newline separated
const indexKey = "sessions"

// Backend is everything a session's store and controller call
type Backend interface {
	store.Backend
	client.FileAPI
}

// Session is one wizard UI instance
type Session struct {
	ID     string
	Store  *store.Store
	Wizard *wizard.Controller

	lastSeen time.Time
	unsub    func()
}

// Options tune a Registry
type Options struct {
	// IdleTTL evicts sessions not seen for this long. Zero disables eviction.
	IdleTTL time.Duration
	// StoreOptions are passed to every new store
	StoreOptions []store.Option
	// OnSnapshot receives every store change of every session
	OnSnapshot func(sessionID string, snap store.Snapshot)
}

// Registry owns the sessions of the process
type Registry struct {
	api   Backend
	prefs store.Prefs
	opts  Options

	mu       sync.Mutex
	sessions map[string]*Session
	known    map[string]bool
}

func NewRegistry(api Backend, prefs store.Prefs, opts Options) *Registry {
	if prefs == nil {
		prefs = store.NewMemoryPrefs()
	}
	return &Registry{
		api:      api,
		prefs:    prefs,
		opts:     opts,
		sessions: make(map[string]*Session),
		known:    make(map[string]bool),
	}
}

// Get returns the session with id, creating it on first use
func (r *Registry) Get(ctx context.Context, id string) *Session {
	r.mu.Lock()
	if s, ok := r.sessions[id]; ok {
		s.lastSeen = time.Now()
		r.mu.Unlock()
		return s
	}
	s := r.newSessionLocked(id)
	isNew := !r.known[id]
	r.known[id] = true
	index := r.indexLocked()
	r.mu.Unlock()

	if isNew {
		if err := r.prefs.Set(ctx, indexKey, index); err != nil {
			log.Printf("[Session] Failed to persist session index: %v", err)
		}
	}
	log.Printf("[Session] Session %s opened", id)
	return s
}

// Lookup returns an existing session without creating one
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) newSessionLocked(id string) *Session {
	st := store.New(r.api, store.WithNamespace(r.prefs, "session:"+id), r.opts.StoreOptions...)
	s := &Session{
		ID:       id,
		Store:    st,
		Wizard:   wizard.NewController(st, r.api),
		lastSeen: time.Now(),
	}
	if fn := r.opts.OnSnapshot; fn != nil {
		s.unsub = st.Subscribe(func(snap store.Snapshot) { fn(id, snap) })
	}
	r.sessions[id] = s
	return s
}

func (r *Registry) indexLocked() string {
	ids := make([]string, 0, len(r.known))
	for id := range r.known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, "\n")
}

// Remove closes and forgets a session. Its persisted project id is kept so a
// later Get can resume it.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.close()
	}
	return ok
}

func (s *Session) close() {
	if s.unsub != nil {
		s.unsub()
	}
	s.Store.Close()
}

// EvictIdle closes sessions last seen before now minus the idle TTL
func (r *Registry) EvictIdle(now time.Time) int {
	if r.opts.IdleTTL <= 0 {
		return 0
	}
	var idle []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.lastSeen) > r.opts.IdleTTL {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.close()
		log.Printf("[Session] Session %s evicted after %s idle", s.ID, r.opts.IdleTTL)
	}
	return len(idle)
}

// Run evicts idle sessions until ctx is done
func (r *Registry) Run(ctx context.Context) {
	if r.opts.IdleTTL <= 0 {
		return
	}
	interval := r.opts.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.EvictIdle(now)
		}
	}
}

// Restore reopens every persisted session that has a project to resume and
// recovers its wizard. It returns the number of sessions resumed.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	raw, err := r.prefs.Get(ctx, indexKey)
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, id := range strings.Split(raw, "\n") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	r.mu.Lock()
	for _, id := range ids {
		r.known[id] = true
	}
	r.mu.Unlock()

	var (
		mu      sync.Mutex
		resumed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			s := r.Get(gctx, id)
			if _, err := s.Wizard.ResumeLast(gctx); err != nil {
				if errors.Is(err, wizard.ErrNothingToResume) {
					r.Remove(id)
					return nil
				}
				log.Printf("[Session] Failed to resume session %s: %v", id, err)
				return nil
			}
			mu.Lock()
			resumed++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return resumed, err
	}
	log.Printf("[Session] Restored %d of %d sessions", resumed, len(ids))
	return resumed, nil
}

// Close closes every session
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
