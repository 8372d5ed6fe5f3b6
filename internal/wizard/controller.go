package wizard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/model"
	"github.com/bananaslides/deckwizard/internal/store"
)

// StepBlockedError is returned when a forward gate is closed
type StepBlockedError struct {
	Step   Step
	Reason string
}

func (e *StepBlockedError) Error() string {
	return fmt.Sprintf("cannot leave step %s: %s", e.Step, e.Reason)
}

// ConfirmationRequiredError is returned when an action would overwrite
// existing content and was not confirmed
type ConfirmationRequiredError struct {
	Kind    OverwriteKind
	Message string
}

func (e *ConfirmationRequiredError) Error() string {
	return e.Message
}

// Backend is the part of the deck API the controller calls directly
type Backend interface {
	ListProjects(ctx context.Context, limit, offset int) (*client.ProjectList, error)
	client.FileAPI
}

// Draft is the step one input
type Draft struct {
	CreationType model.CreationType `json:"creationType"`
	Content      string             `json:"content"`
}

// TemplateChoice is the step two input
type TemplateChoice struct {
	Style string
	File  *model.Upload
}

// State is the navigation state a UI renders from
type State struct {
	Step            Step                  `json:"step"`
	StepName        string                `json:"stepName"`
	ProjectID       string                `json:"projectId,omitempty"`
	Draft           Draft                 `json:"draft"`
	TemplateStyle   string                `json:"templateStyle,omitempty"`
	HasTemplate     bool                  `json:"hasTemplate"`
	ReferenceFiles  []model.ReferenceFile `json:"referenceFiles"`
	MultiSelect     bool                  `json:"multiSelect"`
	SelectedPageIDs []string              `json:"selectedPageIds"`
	Loading         bool                  `json:"loading"`
	FirstRun        bool                  `json:"firstRun"`
	CanAdvance      Gate                  `json:"canAdvance"`
}

// Controller sequences the five wizard steps of one UI session
type Controller struct {
	store store.ProjectStore
	api   Backend

	mu          sync.RWMutex
	step        Step
	draft       Draft
	template    TemplateChoice
	refs        []model.ReferenceFile
	multiSelect bool
	selected    []string
	recovering  int
	submitting  bool
	firstRun    bool
}

func NewController(s store.ProjectStore, api Backend) *Controller {
	return &Controller{
		store: s,
		api:   api,
		step:  StepFillContent,
		draft: Draft{CreationType: model.CreationTypeIdea},
	}
}

// Store returns the project store the controller drives
func (c *Controller) Store() store.ProjectStore {
	return c.store
}

// Step returns the current step
func (c *Controller) Step() Step {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.step
}

// State returns a snapshot of the navigation state
func (c *Controller) State() State {
	project := c.store.Current()
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := State{
		Step:            c.step,
		StepName:        c.step.String(),
		Draft:           c.draft,
		TemplateStyle:   c.template.Style,
		HasTemplate:     c.template.File != nil,
		ReferenceFiles:  append([]model.ReferenceFile{}, c.refs...),
		MultiSelect:     c.multiSelect,
		SelectedPageIDs: append([]string{}, liveSelection(project, c.selected)...),
		Loading:         c.recovering > 0,
		FirstRun:        c.firstRun,
	}
	if project != nil {
		st.ProjectID = project.ID
	}
	st.CanAdvance = c.gateLocked(project)
	return st
}

// Gate evaluates the forward gate of the current step
func (c *Controller) Gate() Gate {
	project := c.store.Current()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gateLocked(project)
}

func (c *Controller) gateLocked(p *model.Project) Gate {
	if c.recovering > 0 {
		return closed("project is loading")
	}
	if c.submitting {
		return closed("project is being created")
	}
	switch c.step {
	case StepFillContent:
		return CanLeaveFillContent(c.draft.Content, c.refs)
	case StepSelectTemplate:
		return CanSubmitTemplate(c.draft)
	case StepOutlineEditor:
		return CanLeaveOutline(p)
	case StepDetailEditor:
		return CanLeaveDetail(p)
	case StepSlidePreview:
		return CanExport(p, c.multiSelect, liveSelection(p, c.selected))
	}
	return closed("unknown step")
}

// liveSelection drops selected ids that are no longer pages of p
func liveSelection(p *model.Project, selected []string) []string {
	var out []string
	for _, id := range selected {
		if p.PageIndex(id) >= 0 {
			out = append(out, id)
		}
	}
	return out
}

// SetDraft replaces the step one input
func (c *Controller) SetDraft(d Draft) error {
	if !d.CreationType.Valid() {
		return &client.ValidationError{Field: "creationType", Message: fmt.Sprintf("unknown creation type %q", d.CreationType)}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = d
	return nil
}

// SelectTemplate records the optional step two template
func (c *Controller) SelectTemplate(choice TemplateChoice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	choice.Style = strings.TrimSpace(choice.Style)
	c.template = choice
}

// AttachReferenceFile uploads a reference document and starts its parse
func (c *Controller) AttachReferenceFile(ctx context.Context, upload *model.Upload) (*model.ReferenceFile, error) {
	if err := CheckReferenceFile(upload); err != nil {
		return nil, err
	}
	projectID := ""
	if p := c.store.Current(); p != nil {
		projectID = p.ID
	}

	file, err := c.api.UploadReferenceFile(ctx, projectID, upload)
	if err != nil {
		return nil, fmt.Errorf("failed to upload reference file: %w", err)
	}
	if file.ParseStatus == model.ParseStatusPending {
		parsed, err := c.api.TriggerFileParse(ctx, file.ID)
		if err != nil {
			log.Printf("[Wizard] Failed to trigger parse of %s: %v", file.ID, err)
		} else if parsed != nil && parsed.ID != "" {
			file = parsed
		}
	}

	c.mu.Lock()
	c.putRefLocked(*file)
	c.mu.Unlock()
	return file, nil
}

func (c *Controller) putRefLocked(f model.ReferenceFile) {
	for i := range c.refs {
		if c.refs[i].ID == f.ID {
			c.refs[i] = f
			return
		}
	}
	c.refs = append(c.refs, f)
}

// RefreshReferenceFiles re-reads the parse status of unfinished files
func (c *Controller) RefreshReferenceFiles(ctx context.Context) ([]model.ReferenceFile, error) {
	c.mu.RLock()
	var pending []string
	for _, f := range c.refs {
		if f.ParseStatus.InProgress() {
			pending = append(pending, f.ID)
		}
	}
	c.mu.RUnlock()

	for _, id := range pending {
		file, err := c.api.GetReferenceFile(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to refresh reference file: %w", err)
		}
		c.mu.Lock()
		for i := range c.refs {
			if c.refs[i].ID == id {
				c.refs[i] = *file
			}
		}
		c.mu.Unlock()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.ReferenceFile{}, c.refs...), nil
}

// DetachReferenceFile drops a reference file from the draft
func (c *Controller) DetachReferenceFile(fileID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.refs {
		if c.refs[i].ID == fileID {
			c.refs = append(c.refs[:i], c.refs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("reference file %s not attached", fileID)
}

// AttachMaterial uploads an image and links it from the draft content
func (c *Controller) AttachMaterial(ctx context.Context, upload *model.Upload) (*model.Material, error) {
	if upload == nil || len(upload.Data) == 0 {
		return nil, &client.ValidationError{Field: "file", Message: "file is empty"}
	}
	projectID := ""
	if p := c.store.Current(); p != nil {
		projectID = p.ID
	}
	material, err := c.api.UploadMaterial(ctx, projectID, upload)
	if err != nil {
		return nil, fmt.Errorf("failed to upload material: %w", err)
	}
	if material.URL != "" {
		c.mu.Lock()
		c.draft.Content = AppendImage(c.draft.Content, material.URL)
		c.mu.Unlock()
	}
	return material, nil
}

// RemoveDraftImage unlinks an image from the draft content
func (c *Controller) RemoveDraftImage(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft.Content = RemoveImage(c.draft.Content, url)
}

// UserTemplates lists the saved template images
func (c *Controller) UserTemplates(ctx context.Context) ([]model.UserTemplate, error) {
	templates, err := c.api.ListUserTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// Next advances one step when the current gate allows it. Leaving step two
// creates the project.
func (c *Controller) Next(ctx context.Context) (State, error) {
	project := c.store.Current()
	c.mu.Lock()
	gate := c.gateLocked(project)
	step := c.step
	if !gate.Allowed {
		c.mu.Unlock()
		return c.State(), &StepBlockedError{Step: step, Reason: gate.Reason}
	}
	draft := c.draft
	template := c.template
	if step == StepSelectTemplate {
		c.submitting = true
	}
	c.mu.Unlock()

	switch step {
	case StepFillContent:
		c.setStep(StepSelectTemplate)
	case StepSelectTemplate:
		err := c.createProject(ctx, draft, template)
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
		if err != nil {
			return c.State(), err
		}
	case StepOutlineEditor:
		c.setStep(StepDetailEditor)
		c.enterDetail(ctx)
	case StepDetailEditor:
		c.setStep(StepSlidePreview)
	case StepSlidePreview:
		// Export is the last action, there is no step after preview
		return c.State(), nil
	}
	return c.State(), nil
}

func (c *Controller) createProject(ctx context.Context, draft Draft, template TemplateChoice) error {
	firstRun := false
	if history, err := c.api.ListProjects(ctx, 1, 0); err != nil {
		log.Printf("[Wizard] Project history probe failed, skipping first-run hint: %v", err)
	} else if len(history.Projects) == 0 {
		firstRun = true
	}

	project, err := c.store.InitializeProject(ctx, draft.CreationType, draft.Content, template.File, template.Style)
	if err != nil {
		return err
	}
	log.Printf("[Wizard] Project %s created, entering %s", project.ID, TargetStep(draft.CreationType))

	c.mu.Lock()
	c.firstRun = firstRun
	c.template.File = nil
	c.refs = nil
	c.mu.Unlock()

	target := TargetStep(draft.CreationType)
	c.setStep(target)
	if target == StepDetailEditor {
		c.enterDetail(ctx)
	}
	return nil
}

// Previous goes back one step, never below step one
func (c *Controller) Previous() State {
	c.mu.Lock()
	if c.step > StepFillContent {
		c.leaveLocked(c.step)
		c.step--
	}
	c.mu.Unlock()
	return c.State()
}

func (c *Controller) setStep(s Step) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != s {
		c.leaveLocked(c.step)
	}
	c.step = s
}

// leaveLocked drops state scoped to the step being left
func (c *Controller) leaveLocked(s Step) {
	if s == StepSlidePreview {
		c.multiSelect = false
		c.selected = nil
	}
}

// enterDetail re-syncs when no page has a description yet, since a batch
// may have finished server side after the last sync
func (c *Controller) enterDetail(ctx context.Context) {
	p := c.store.Current()
	if p == nil || WouldOverwriteDescriptions(p) {
		return
	}
	if err := c.store.SyncProject(ctx, p.ID); err != nil {
		log.Printf("[Wizard] Description re-sync of project %s failed: %v", p.ID, err)
	}
}

// Recover restores the wizard at step for projectID, syncing the store when
// it holds another project. Sync failures are logged, not returned.
func (c *Controller) Recover(ctx context.Context, projectID string, step Step) State {
	if !step.Valid() || step < StepOutlineEditor {
		step = StepOutlineEditor
	}
	c.setStep(step)

	current := c.store.Current()
	if current == nil || current.ID != projectID {
		c.mu.Lock()
		c.recovering++
		c.mu.Unlock()

		if err := c.store.SyncProject(ctx, projectID); err != nil {
			log.Printf("[Wizard] Recovery of project %s failed: %v", projectID, err)
		}

		c.mu.Lock()
		c.recovering--
		c.mu.Unlock()
	}
	if step == StepDetailEditor {
		c.enterDetail(ctx)
	}
	return c.State()
}

// ErrNothingToResume is returned by ResumeLast when no project id is stored
var ErrNothingToResume = errors.New("no project to resume")

// ResumeLast recovers the persisted current project at the furthest step it
// has content for
func (c *Controller) ResumeLast(ctx context.Context) (State, error) {
	projectID, err := c.store.LastProjectID(ctx)
	if err != nil {
		return c.State(), fmt.Errorf("failed to read current project: %w", err)
	}
	if projectID == "" {
		return c.State(), ErrNothingToResume
	}
	st := c.Recover(ctx, projectID, StepOutlineEditor)
	p := c.store.Current()
	if p == nil || p.ID != projectID {
		return st, nil
	}
	return c.Recover(ctx, projectID, ResumeStep(p)), nil
}

// Reset clears the wizard back to an empty step one
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.step = StepFillContent
	c.draft = Draft{CreationType: model.CreationTypeIdea}
	c.template = TemplateChoice{}
	c.refs = nil
	c.multiSelect = false
	c.selected = nil
	c.firstRun = false
	c.mu.Unlock()
	return c.store.Clear(ctx)
}

// SetSelection sets the step five multi-select state
func (c *Controller) SetSelection(multiSelect bool, pageIDs []string) error {
	project := c.store.Current()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != StepSlidePreview {
		return &StepBlockedError{Step: c.step, Reason: "page selection is only available in the preview"}
	}
	var selected []string
	seen := make(map[string]bool, len(pageIDs))
	for _, id := range pageIDs {
		if seen[id] {
			continue
		}
		if project.PageIndex(id) < 0 {
			return fmt.Errorf("%w: %s", store.ErrPageNotFound, id)
		}
		seen[id] = true
		selected = append(selected, id)
	}
	c.multiSelect = multiSelect
	if !multiSelect {
		selected = nil
	}
	c.selected = selected
	return nil
}

// SelectedPageIDsForExport returns the pages to export, or nil for all
func (c *Controller) SelectedPageIDsForExport() []string {
	project := c.store.Current()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.multiSelect {
		return nil
	}
	return liveSelection(project, c.selected)
}

// DeletePage deletes a page and drops it from the preview selection
func (c *Controller) DeletePage(ctx context.Context, pageID string) error {
	if err := c.store.DeletePageByID(ctx, pageID); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range c.selected {
		if id == pageID {
			c.selected = append(c.selected[:i:i], c.selected[i+1:]...)
			break
		}
	}
	return nil
}

// CheckExport evaluates the export gate
func (c *Controller) CheckExport() error {
	project := c.store.Current()
	c.mu.RLock()
	defer c.mu.RUnlock()
	gate := CanExport(project, c.multiSelect, liveSelection(project, c.selected))
	if !gate.Allowed {
		return &StepBlockedError{Step: StepSlidePreview, Reason: gate.Reason}
	}
	return nil
}

// ConfirmOverwrite fails with ConfirmationRequiredError when an action of
// kind would replace content and confirm is false
func (c *Controller) ConfirmOverwrite(kind OverwriteKind, pageIDs []string, confirm bool) error {
	if confirm {
		return nil
	}
	if WouldOverwrite(kind, c.store.Current(), pageIDs) {
		return &ConfirmationRequiredError{Kind: kind, Message: ConsequenceMessage(kind)}
	}
	return nil
}

// DragEnd moves the page at from to to, optimistically
func (c *Controller) DragEnd(ctx context.Context, from, to int) error {
	p := c.store.Current()
	if p == nil {
		return store.ErrNoProject
	}
	ids, ok := MoveIndex(p.PageIDs(), from, to)
	if !ok {
		return nil
	}
	return c.store.ReorderPages(ctx, ids)
}

// EditImageContext gathers the description image URLs of a page for an edit
func (c *Controller) EditImageContext(pageID string) []string {
	page, ok := c.store.Page(pageID)
	if !ok || page.DescriptionContent == nil {
		return nil
	}
	return ExtractImageURLs(page.DescriptionContent.String())
}
