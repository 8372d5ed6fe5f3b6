package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/model"
)

var (
	ErrNoProject    = errors.New("no current project")
	ErrPageNotFound = errors.New("page not found")
	ErrPageBusy     = errors.New("page generation already in progress")
)

// CreationError is returned when the backend rejects a new project
type CreationError struct {
	Err error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("failed to create project: %v", e.Err)
}

func (e *CreationError) Unwrap() error {
	return e.Err
}

// Backend is the part of the deck API the store drives
type Backend interface {
	client.ProjectAPI
	client.GenerationAPI
	client.ImageAPI
}

// Snapshot is the observable state of a store
type Snapshot struct {
	Project                        *model.Project    `json:"project"`
	IsGlobalLoading                bool              `json:"isGlobalLoading"`
	PageGeneratingTasks            map[string]string `json:"pageGeneratingTasks"`
	PageDescriptionGeneratingTasks map[string]string `json:"pageDescriptionGeneratingTasks"`
}

// PagePatch is a partial local page edit
type PagePatch struct {
	OutlineContent     *model.OutlineContent
	DescriptionContent *model.DescriptionContent
}

// EditImageInput is an image edit instruction with its context
type EditImageInput struct {
	Instruction   string
	UseTemplate   bool
	DescImageURLs []string
	ContextFiles  []*model.Upload
}

// ProjectStore is the single source of truth for the current project
type ProjectStore interface {
	Current() *model.Project
	Snapshot() Snapshot
	Page(pageID string) (model.Page, bool)
	Subscribe(fn func(Snapshot)) (unsubscribe func())
	IsGlobalLoading() bool
	PageGeneratingTasks() map[string]string
	PageDescriptionGeneratingTasks() map[string]string
	LastProjectID(ctx context.Context) (string, error)

	InitializeProject(ctx context.Context, creationType model.CreationType, content string, templateFile *model.Upload, styleDescription string) (*model.Project, error)
	SyncProject(ctx context.Context, projectID string) error
	Clear(ctx context.Context) error
	UpdatePageLocal(pageID string, patch PagePatch) error
	SavePage(ctx context.Context, pageID string) error
	ReorderPages(ctx context.Context, orderedIDs []string) error
	DeletePageByID(ctx context.Context, pageID string) error
	AddNewPage(ctx context.Context) (*model.Page, error)
	UpdateProjectSettings(ctx context.Context, settings *model.ProjectSettings) error

	GenerateOutline(ctx context.Context) error
	RefineOutline(ctx context.Context, requirement string, previous []string) error
	GenerateDescriptions(ctx context.Context) error
	GeneratePageDescription(ctx context.Context, pageID string) error
	RefineDescriptions(ctx context.Context, requirement string, previous []string) error
	GenerateImages(ctx context.Context, pageIDs []string) error
	EditPageImage(ctx context.Context, pageID string, input EditImageInput) error
	ImageVersions(ctx context.Context, pageID string) ([]model.ImageVersion, error)
	SetCurrentImageVersion(ctx context.Context, pageID, versionID string) error
}

// Option configures a Store
type Option func(*Store)

// WithPolling sets the cadence and ceiling of generation task watchers
func WithPolling(interval, timeout time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.pollInterval = interval
		}
		if timeout > 0 {
			s.pollTimeout = timeout
		}
	}
}

// Store implements ProjectStore
type Store struct {
	api          Backend
	prefs        Prefs
	pollInterval time.Duration
	pollTimeout  time.Duration

	mu        sync.RWMutex
	project   *model.Project
	loading   int
	pageTasks map[string]string
	descTasks map[string]string
	// pre-edit copies of pages with unsaved local edits
	dirty map[string]model.Page

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int

	watchCtx    context.Context
	watchCancel context.CancelFunc
	wg          sync.WaitGroup
}

var _ ProjectStore = (*Store)(nil)

// New creates a store backed by api, persisting the current id in prefs
func New(api Backend, prefs Prefs, opts ...Option) *Store {
	if prefs == nil {
		prefs = NewMemoryPrefs()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		api:          api,
		prefs:        prefs,
		pollInterval: 2 * time.Second,
		pollTimeout:  15 * time.Minute,
		pageTasks:    make(map[string]string),
		descTasks:    make(map[string]string),
		dirty:        make(map[string]model.Page),
		subs:         make(map[int]func(Snapshot)),
		watchCtx:     ctx,
		watchCancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close stops background watchers and waits for them to exit
func (s *Store) Close() {
	s.watchCancel()
	s.wg.Wait()
}

// Current returns a deep copy of the current project, or nil
func (s *Store) Current() *model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project.Clone()
}

// Snapshot returns a copy of the whole observable state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Project:                        s.project.Clone(),
		IsGlobalLoading:                s.loading > 0,
		PageGeneratingTasks:            copyMap(s.pageTasks),
		PageDescriptionGeneratingTasks: copyMap(s.descTasks),
	}
}

// Page returns a copy of one page of the current project
func (s *Store) Page(pageID string) (model.Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.project.PageIndex(pageID)
	if idx < 0 {
		return model.Page{}, false
	}
	return s.project.Pages[idx].Clone(), true
}

// Subscribe registers fn to be called after every state change
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	snap := s.Snapshot()
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// IsGlobalLoading reports whether a project-wide operation is outstanding
func (s *Store) IsGlobalLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// PageGeneratingTasks maps page id to the image task that claimed it
func (s *Store) PageGeneratingTasks() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMap(s.pageTasks)
}

// PageDescriptionGeneratingTasks maps page id to the description task that claimed it
func (s *Store) PageDescriptionGeneratingTasks() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMap(s.descTasks)
}

// LastProjectID returns the persisted current project id
func (s *Store) LastProjectID(ctx context.Context) (string, error) {
	return s.prefs.Get(ctx, CurrentProjectKey)
}

func (s *Store) beginLoading() func() {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	s.notify()
	return func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
		s.notify()
	}
}

func (s *Store) currentID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.project == nil {
		return "", ErrNoProject
	}
	return s.project.ID, nil
}

// InitializeProject creates a project from the wizard's initial content
func (s *Store) InitializeProject(ctx context.Context, creationType model.CreationType, content string, templateFile *model.Upload, styleDescription string) (*model.Project, error) {
	if !creationType.Valid() {
		return nil, &client.ValidationError{Field: "creationType", Message: fmt.Sprintf("unknown creation type %q", creationType)}
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, &client.ValidationError{Field: "content", Message: "content is required"}
	}

	req := &client.CreateProjectRequest{
		CreationType:  creationType,
		TemplateStyle: strings.TrimSpace(styleDescription),
	}
	switch creationType {
	case model.CreationTypeIdea:
		req.IdeaPrompt = content
	case model.CreationTypeOutline:
		req.OutlineText = content
	case model.CreationTypeDescription:
		req.DescriptionText = content
	}

	done := s.beginLoading()
	defer done()

	created, err := s.api.CreateProject(ctx, req)
	if err != nil {
		return nil, &CreationError{Err: err}
	}

	if templateFile != nil {
		if err := s.api.UploadTemplate(ctx, created.ID, templateFile); err != nil {
			log.Printf("[Store] Template upload for project %s failed: %v", created.ID, err)
		}
	}

	if err := s.prefs.Set(ctx, CurrentProjectKey, created.ID); err != nil {
		log.Printf("[Store] Failed to persist current project id: %v", err)
	}

	project, err := s.api.GetProject(ctx, created.ID)
	if err != nil {
		log.Printf("[Store] Initial sync of project %s failed, using creation response: %v", created.ID, err)
		project = created
	}

	s.mu.Lock()
	s.project = project.Clone()
	s.pageTasks = make(map[string]string)
	s.descTasks = make(map[string]string)
	s.dirty = make(map[string]model.Page)
	result := s.project.Clone()
	s.mu.Unlock()
	s.notify()

	log.Printf("[Store] Project %s created (%s)", project.ID, creationType)
	return result, nil
}

// SyncProject replaces local state with the authoritative snapshot
func (s *Store) SyncProject(ctx context.Context, projectID string) error {
	if projectID == "" {
		return &client.ValidationError{Field: "projectId", Message: "project id is required"}
	}
	project, err := s.api.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to sync project: %w", err)
	}

	s.mu.Lock()
	switched := s.project == nil || s.project.ID != project.ID
	s.project = project.Clone()
	s.dirty = make(map[string]model.Page)
	if switched {
		s.pageTasks = make(map[string]string)
		s.descTasks = make(map[string]string)
	} else {
		s.pruneMarkersLocked()
	}
	s.mu.Unlock()

	if err := s.prefs.Set(ctx, CurrentProjectKey, project.ID); err != nil {
		log.Printf("[Store] Failed to persist current project id: %v", err)
	}

	s.notify()
	return nil
}

// pruneMarkersLocked drops markers for pages that no longer exist
func (s *Store) pruneMarkersLocked() {
	for _, m := range []map[string]string{s.pageTasks, s.descTasks} {
		for pageID := range m {
			if s.project.PageIndex(pageID) < 0 {
				delete(m, pageID)
			}
		}
	}
}

// Clear forgets the current project
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.project = nil
	s.pageTasks = make(map[string]string)
	s.descTasks = make(map[string]string)
	s.dirty = make(map[string]model.Page)
	s.mu.Unlock()
	s.notify()
	return s.prefs.Delete(ctx, CurrentProjectKey)
}

// UpdatePageLocal applies an optimistic edit without a server round trip
func (s *Store) UpdatePageLocal(pageID string, patch PagePatch) error {
	s.mu.Lock()
	if s.project == nil {
		s.mu.Unlock()
		return ErrNoProject
	}
	idx := s.project.PageIndex(pageID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrPageNotFound
	}
	page := &s.project.Pages[idx]
	if _, ok := s.dirty[pageID]; !ok {
		s.dirty[pageID] = page.Clone()
	}
	if patch.OutlineContent != nil {
		page.OutlineContent = model.OutlineContent{
			Title:  patch.OutlineContent.Title,
			Points: append([]string(nil), patch.OutlineContent.Points...),
		}
	}
	if patch.DescriptionContent != nil {
		d := *patch.DescriptionContent
		d.TextContent = append([]string(nil), patch.DescriptionContent.TextContent...)
		page.DescriptionContent = &d
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// SavePage persists a page's local edits, reverting them if the server refuses
func (s *Store) SavePage(ctx context.Context, pageID string) error {
	s.mu.RLock()
	if s.project == nil {
		s.mu.RUnlock()
		return ErrNoProject
	}
	projectID := s.project.ID
	idx := s.project.PageIndex(pageID)
	if idx < 0 {
		s.mu.RUnlock()
		return ErrPageNotFound
	}
	page := s.project.Pages[idx].Clone()
	s.mu.RUnlock()

	outline := page.OutlineContent
	saved, err := s.api.UpdatePage(ctx, projectID, pageID, &client.UpdatePageRequest{
		OutlineContent:     &outline,
		DescriptionContent: page.DescriptionContent,
	})

	s.mu.Lock()
	if s.project == nil || s.project.ID != projectID {
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to save page: %w", err)
		}
		return nil
	}
	idx = s.project.PageIndex(pageID)
	if err != nil {
		if prev, ok := s.dirty[pageID]; ok && idx >= 0 {
			s.project.Pages[idx] = prev
			delete(s.dirty, pageID)
		}
		s.mu.Unlock()
		s.notify()
		return fmt.Errorf("failed to save page: %w", err)
	}
	delete(s.dirty, pageID)
	if saved != nil && saved.ID == pageID && idx >= 0 {
		s.project.Pages[idx] = saved.Clone()
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// ReorderPages applies orderedIDs locally, then persists it. The previous
// order is restored if the server rejects it.
func (s *Store) ReorderPages(ctx context.Context, orderedIDs []string) error {
	s.mu.Lock()
	if s.project == nil {
		s.mu.Unlock()
		return ErrNoProject
	}
	if !samePageSet(s.project.PageIDs(), orderedIDs) {
		s.mu.Unlock()
		return &client.ValidationError{Field: "pageIds", Message: "order must list every page exactly once"}
	}
	projectID := s.project.ID
	previous := s.project.PageIDs()
	applyOrder(s.project, orderedIDs)
	s.mu.Unlock()
	s.notify()

	err := s.api.ReorderPages(ctx, projectID, orderedIDs)
	if err == nil {
		return nil
	}

	s.mu.Lock()
	// Only roll back if nothing reordered the pages since
	if s.project != nil && s.project.ID == projectID && equalIDs(s.project.PageIDs(), orderedIDs) {
		applyOrder(s.project, previous)
	}
	s.mu.Unlock()
	s.notify()
	log.Printf("[Store] Reorder of project %s rolled back: %v", projectID, err)
	return fmt.Errorf("failed to reorder pages: %w", err)
}

// DeletePageByID removes a page on the server, then locally
func (s *Store) DeletePageByID(ctx context.Context, pageID string) error {
	projectID, err := s.currentID()
	if err != nil {
		return err
	}
	if _, ok := s.Page(pageID); !ok {
		return ErrPageNotFound
	}

	done := s.beginLoading()
	defer done()

	if err := s.api.DeletePage(ctx, projectID, pageID); err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}

	s.mu.Lock()
	if s.project != nil && s.project.ID == projectID {
		if idx := s.project.PageIndex(pageID); idx >= 0 {
			s.project.Pages = append(s.project.Pages[:idx], s.project.Pages[idx+1:]...)
			for i := range s.project.Pages {
				s.project.Pages[i].OrderIndex = i
			}
		}
		delete(s.pageTasks, pageID)
		delete(s.descTasks, pageID)
		delete(s.dirty, pageID)
	}
	s.mu.Unlock()
	return nil
}

// AddNewPage appends a blank page
func (s *Store) AddNewPage(ctx context.Context) (*model.Page, error) {
	s.mu.RLock()
	if s.project == nil {
		s.mu.RUnlock()
		return nil, ErrNoProject
	}
	projectID := s.project.ID
	next := len(s.project.Pages)
	s.mu.RUnlock()

	done := s.beginLoading()
	defer done()

	page, err := s.api.AddPage(ctx, projectID, &client.AddPageRequest{
		OutlineContent: model.OutlineContent{Title: "", Points: []string{}},
		OrderIndex:     next,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add page: %w", err)
	}
	if page.ID == "" {
		// Backend did not echo the page, fall back to the snapshot
		if err := s.SyncProject(ctx, projectID); err != nil {
			return nil, err
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.project == nil || len(s.project.Pages) == 0 {
			return nil, ErrPageNotFound
		}
		last := s.project.Pages[len(s.project.Pages)-1].Clone()
		return &last, nil
	}

	s.mu.Lock()
	if s.project != nil && s.project.ID == projectID {
		added := page.Clone()
		added.OrderIndex = len(s.project.Pages)
		s.project.Pages = append(s.project.Pages, added)
	}
	s.mu.Unlock()
	result := page.Clone()
	return &result, nil
}

// UpdateProjectSettings persists project preferences and re-syncs
func (s *Store) UpdateProjectSettings(ctx context.Context, settings *model.ProjectSettings) error {
	projectID, err := s.currentID()
	if err != nil {
		return err
	}
	if err := s.api.UpdateProject(ctx, projectID, settings); err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return s.SyncProject(ctx, projectID)
}

// GenerateOutline synthesizes outlines for every page, replacing existing ones
func (s *Store) GenerateOutline(ctx context.Context) error {
	projectID, err := s.currentID()
	if err != nil {
		return err
	}

	done := s.beginLoading()
	defer done()

	pages, err := s.api.GenerateOutline(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to generate outline: %w", err)
	}

	if err := s.SyncProject(ctx, projectID); err != nil {
		log.Printf("[Store] Sync after outline generation failed, applying response: %v", err)
		s.mu.Lock()
		if s.project != nil && s.project.ID == projectID {
			s.project.Pages = make([]model.Page, len(pages))
			for i := range pages {
				s.project.Pages[i] = pages[i].Clone()
			}
		}
		s.mu.Unlock()
	}
	return nil
}

// RefineOutline sends a natural language instruction against the outline
func (s *Store) RefineOutline(ctx context.Context, requirement string, previous []string) error {
	return s.refine(ctx, requirement, previous, s.api.RefineOutline)
}

// RefineDescriptions sends a natural language instruction against the descriptions
func (s *Store) RefineDescriptions(ctx context.Context, requirement string, previous []string) error {
	return s.refine(ctx, requirement, previous, s.api.RefineDescriptions)
}

func (s *Store) refine(ctx context.Context, requirement string, previous []string, call func(context.Context, string, string, []string) error) error {
	requirement = strings.TrimSpace(requirement)
	if requirement == "" {
		return &client.ValidationError{Field: "requirement", Message: "requirement is required"}
	}
	projectID, err := s.currentID()
	if err != nil {
		return err
	}

	done := s.beginLoading()
	defer done()

	if err := call(ctx, projectID, requirement, previous); err != nil {
		return fmt.Errorf("failed to refine: %w", err)
	}
	return s.SyncProject(ctx, projectID)
}

// GenerateDescriptions starts description synthesis for every page
func (s *Store) GenerateDescriptions(ctx context.Context) error {
	projectID, err := s.currentID()
	if err != nil {
		return err
	}

	done := s.beginLoading()
	defer done()

	task, err := s.api.GenerateDescriptions(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to generate descriptions: %w", err)
	}
	if task == nil || task.TaskID == "" || task.Status.IsTerminal() {
		return s.SyncProject(ctx, projectID)
	}

	s.mu.Lock()
	if s.project != nil && s.project.ID == projectID {
		for _, page := range s.project.Pages {
			if _, claimed := s.descTasks[page.ID]; !claimed && page.ID != "" {
				s.descTasks[page.ID] = task.TaskID
			}
		}
	}
	s.mu.Unlock()
	s.notify()

	s.watch(projectID, task.TaskID, markerDescription)
	return nil
}

// GeneratePageDescription synthesizes one page's description
func (s *Store) GeneratePageDescription(ctx context.Context, pageID string) error {
	projectID, err := s.currentID()
	if err != nil {
		return err
	}
	page, ok := s.Page(pageID)
	if !ok {
		return ErrPageNotFound
	}
	token, err := s.claim(markerDescription, []string{pageID})
	if err != nil {
		return err
	}
	s.notify()

	generated, err := s.api.GeneratePageDescription(ctx, projectID, pageID, page.HasDescription())
	s.release(markerDescription, token)
	if err != nil {
		s.notify()
		return fmt.Errorf("failed to generate description: %w", err)
	}

	if generated != nil && generated.ID == pageID {
		s.mu.Lock()
		if s.project != nil && s.project.ID == projectID {
			if idx := s.project.PageIndex(pageID); idx >= 0 {
				g := generated.Clone()
				g.OrderIndex = s.project.Pages[idx].OrderIndex
				s.project.Pages[idx] = g
			}
		}
		s.mu.Unlock()
		s.notify()
		return nil
	}
	return s.SyncProject(ctx, projectID)
}

// GenerateImages starts image generation for pageIDs, or every page when empty.
// Pages with a generation already in flight are skipped.
func (s *Store) GenerateImages(ctx context.Context, pageIDs []string) error {
	s.mu.RLock()
	if s.project == nil {
		s.mu.RUnlock()
		return ErrNoProject
	}
	projectID := s.project.ID
	all := s.project.PageIDs()
	s.mu.RUnlock()

	targets := pageIDs
	if len(targets) == 0 {
		targets = all
	}
	for _, id := range targets {
		if !containsID(all, id) {
			return fmt.Errorf("%w: %s", ErrPageNotFound, id)
		}
	}

	token, claimed := s.claimAvailable(markerImage, targets)
	if len(claimed) == 0 {
		return ErrPageBusy
	}

	done := s.beginLoading()
	defer done()

	var request []string
	if len(pageIDs) > 0 || len(claimed) != len(all) {
		request = claimed
	}
	task, err := s.api.GenerateImages(ctx, projectID, request)
	if err != nil {
		s.release(markerImage, token)
		return fmt.Errorf("failed to generate images: %w", err)
	}
	if task == nil || task.TaskID == "" || task.Status.IsTerminal() {
		s.release(markerImage, token)
		return s.SyncProject(ctx, projectID)
	}

	s.rebind(markerImage, token, task.TaskID, projectID)
	s.watch(projectID, task.TaskID, markerImage)
	return nil
}

// EditPageImage regenerates one page's image as a new version
func (s *Store) EditPageImage(ctx context.Context, pageID string, input EditImageInput) error {
	if strings.TrimSpace(input.Instruction) == "" {
		return &client.ValidationError{Field: "instruction", Message: "edit instruction is required"}
	}
	projectID, err := s.currentID()
	if err != nil {
		return err
	}
	if _, ok := s.Page(pageID); !ok {
		return ErrPageNotFound
	}
	token, err := s.claim(markerImage, []string{pageID})
	if err != nil {
		return err
	}
	s.notify()

	task, err := s.api.EditPageImage(ctx, projectID, pageID, &client.EditImageParams{
		Instruction:   input.Instruction,
		UseTemplate:   input.UseTemplate,
		DescImageURLs: input.DescImageURLs,
		ContextFiles:  input.ContextFiles,
	})
	if err != nil {
		s.release(markerImage, token)
		s.notify()
		return fmt.Errorf("failed to edit image: %w", err)
	}
	if task == nil || task.TaskID == "" || task.Status.IsTerminal() {
		s.release(markerImage, token)
		return s.SyncProject(ctx, projectID)
	}

	s.rebind(markerImage, token, task.TaskID, projectID)
	s.watch(projectID, task.TaskID, markerImage)
	return nil
}

// ImageVersions lists a page's image history
func (s *Store) ImageVersions(ctx context.Context, pageID string) ([]model.ImageVersion, error) {
	projectID, err := s.currentID()
	if err != nil {
		return nil, err
	}
	versions, err := s.api.ListImageVersions(ctx, projectID, pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list image versions: %w", err)
	}
	return versions, nil
}

// SetCurrentImageVersion moves the server-side current pointer, then re-syncs
func (s *Store) SetCurrentImageVersion(ctx context.Context, pageID, versionID string) error {
	projectID, err := s.currentID()
	if err != nil {
		return err
	}
	if err := s.api.SetCurrentImageVersion(ctx, projectID, pageID, versionID); err != nil {
		return fmt.Errorf("failed to switch image version: %w", err)
	}
	return s.SyncProject(ctx, projectID)
}

type markerKind int

const (
	markerImage markerKind = iota
	markerDescription
)

func (s *Store) markers(kind markerKind) map[string]string {
	if kind == markerDescription {
		return s.descTasks
	}
	return s.pageTasks
}

// claim marks every page with a fresh token, or fails if any is already marked
func (s *Store) claim(kind markerKind, pageIDs []string) (string, error) {
	token := "pending-" + uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.markers(kind)
	for _, id := range pageIDs {
		if _, busy := m[id]; busy {
			return "", ErrPageBusy
		}
	}
	for _, id := range pageIDs {
		m[id] = token
	}
	return token, nil
}

// claimAvailable marks the unmarked subset of pageIDs
func (s *Store) claimAvailable(kind markerKind, pageIDs []string) (string, []string) {
	token := "pending-" + uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.markers(kind)
	var claimed []string
	for _, id := range pageIDs {
		if _, busy := m[id]; busy {
			continue
		}
		m[id] = token
		claimed = append(claimed, id)
	}
	return token, claimed
}

// release clears markers that still carry token
func (s *Store) release(kind markerKind, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.markers(kind)
	for id, t := range m {
		if t == token {
			delete(m, id)
		}
	}
}

// rebind swaps a provisional token for the backend task id and flags the pages
func (s *Store) rebind(kind markerKind, token, taskID, projectID string) {
	s.mu.Lock()
	m := s.markers(kind)
	for id, t := range m {
		if t != token {
			continue
		}
		m[id] = taskID
		if kind == markerImage && s.project != nil && s.project.ID == projectID {
			if idx := s.project.PageIndex(id); idx >= 0 {
				s.project.Pages[idx].Status = model.PageStatusGenerating
			}
		}
	}
	s.mu.Unlock()
	s.notify()
}

// watch polls a backend task until it ends, then clears its markers and re-syncs
func (s *Store) watch(projectID, taskID string, kind markerKind) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		status, err := s.pollTask(s.watchCtx, projectID, taskID)
		if err != nil && errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			log.Printf("[Store] Task %s (project=%s) watch ended: %v", taskID, projectID, err)
		} else {
			log.Printf("[Store] Task %s (project=%s) finished: %s", taskID, projectID, status)
		}

		s.release(kind, taskID)

		s.mu.RLock()
		current := s.project != nil && s.project.ID == projectID
		s.mu.RUnlock()
		if current {
			ctx, cancel := context.WithTimeout(s.watchCtx, 30*time.Second)
			defer cancel()
			if err := s.SyncProject(ctx, projectID); err != nil {
				log.Printf("[Store] Sync after task %s failed: %v", taskID, err)
				s.notify()
			}
			return
		}
		s.notify()
	}()
}

const maxConsecutivePollErrors = 3

func (s *Store) pollTask(ctx context.Context, projectID, taskID string) (model.TaskStatus, error) {
	deadline := time.Now().Add(s.pollTimeout)
	attempt := 0
	failures := 0

	for time.Now().Before(deadline) {
		attempt++
		task, err := s.api.GetTask(ctx, projectID, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			failures++
			log.Printf("[Store] Poll task #%d (task=%s) — error: %v", attempt, taskID, err)
			if failures >= maxConsecutivePollErrors {
				return "", fmt.Errorf("task status unavailable: %w", err)
			}
		} else {
			failures = 0
			if task.Status.IsTerminal() {
				return task.Status, nil
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}

	return "", fmt.Errorf("task %s timed out after %v", taskID, s.pollTimeout)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func samePageSet(current, ordered []string) bool {
	if len(current) != len(ordered) {
		return false
	}
	seen := make(map[string]int, len(current))
	for _, id := range current {
		seen[id]++
	}
	for _, id := range ordered {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// applyOrder re-sequences pages to match ids, which must be a permutation
func applyOrder(p *model.Project, ids []string) {
	byID := make(map[string]model.Page, len(p.Pages))
	for _, page := range p.Pages {
		byID[page.ID] = page
	}
	pages := make([]model.Page, 0, len(ids))
	for i, id := range ids {
		page := byID[id]
		page.OrderIndex = i
		pages = append(pages, page)
	}
	p.Pages = pages
}
