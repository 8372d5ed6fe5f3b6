package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/model"
)

// fakeBackend is an in-memory deck backend
type fakeBackend struct {
	mu       sync.Mutex
	projects map[string]*model.Project
	tasks    map[string]*model.Task
	nextID   int

	createErr   error
	getErr      error
	reorderErr  error
	updateErr   error
	generateErr error
	imagesErr   error

	reorderCalls  [][]string
	imageRequests [][]string
	taskCounter   int
	// pages produced by GenerateOutline
	outline []model.Page
	// block GeneratePageDescription until released
	descGate chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		projects: make(map[string]*model.Project),
		tasks:    make(map[string]*model.Task),
	}
}

func (f *fakeBackend) seed(p *model.Project) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p.Clone()
}

func (f *fakeBackend) project(id string) *model.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projects[id].Clone()
}

func (f *fakeBackend) finishTask(taskID string, status model.TaskStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tasks[taskID]; ok {
		t.Status = status
	}
}

func (f *fakeBackend) CreateProject(_ context.Context, req *client.CreateProjectRequest) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	p := &model.Project{
		ID:           fmt.Sprintf("p%d", f.nextID),
		CreationType: req.CreationType,
		IdeaPrompt:   req.IdeaPrompt,
		OutlineText:  req.OutlineText,
		Pages:        []model.Page{},
	}
	f.projects[p.ID] = p
	return p.Clone(), nil
}

func (f *fakeBackend) ListProjects(_ context.Context, _, _ int) (*client.ProjectList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := &client.ProjectList{}
	for _, p := range f.projects {
		list.Projects = append(list.Projects, *p.Clone())
	}
	list.Total = len(list.Projects)
	return list, nil
}

func (f *fakeBackend) GetProject(_ context.Context, projectID string) (*model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.projects[projectID]
	if !ok {
		return nil, &client.RequestError{StatusCode: 404, Message: "project not found"}
	}
	return p.Clone(), nil
}

func (f *fakeBackend) UpdateProject(_ context.Context, projectID string, settings *model.ProjectSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.projects[projectID]
	if settings.TemplateStyle != nil {
		p.TemplateStyle = *settings.TemplateStyle
	}
	if settings.ExtraRequirements != nil {
		p.ExtraRequirements = *settings.ExtraRequirements
	}
	return nil
}

func (f *fakeBackend) UploadTemplate(_ context.Context, _ string, _ *model.Upload) error {
	return fmt.Errorf("template storage offline")
}

func (f *fakeBackend) ReorderPages(_ context.Context, projectID string, pageIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reorderCalls = append(f.reorderCalls, append([]string(nil), pageIDs...))
	if f.reorderErr != nil {
		return f.reorderErr
	}
	p := f.projects[projectID]
	applyOrder(p, pageIDs)
	return nil
}

func (f *fakeBackend) AddPage(_ context.Context, projectID string, req *client.AddPageRequest) (*model.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.projects[projectID]
	f.nextID++
	page := model.Page{ID: fmt.Sprintf("page%d", f.nextID), OrderIndex: req.OrderIndex, OutlineContent: req.OutlineContent}
	p.Pages = append(p.Pages, page)
	return &page, nil
}

func (f *fakeBackend) UpdatePage(_ context.Context, projectID, pageID string, req *client.UpdatePageRequest) (*model.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p := f.projects[projectID]
	idx := p.PageIndex(pageID)
	if idx < 0 {
		return nil, &client.RequestError{StatusCode: 404, Message: "page not found"}
	}
	if req.OutlineContent != nil {
		p.Pages[idx].OutlineContent = *req.OutlineContent
	}
	if req.DescriptionContent != nil {
		d := *req.DescriptionContent
		p.Pages[idx].DescriptionContent = &d
	}
	page := p.Pages[idx].Clone()
	return &page, nil
}

func (f *fakeBackend) DeletePage(_ context.Context, projectID, pageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.projects[projectID]
	idx := p.PageIndex(pageID)
	if idx < 0 {
		return &client.RequestError{StatusCode: 404, Message: "page not found"}
	}
	p.Pages = append(p.Pages[:idx], p.Pages[idx+1:]...)
	return nil
}

func (f *fakeBackend) GetTask(_ context.Context, _ string, taskID string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, &client.RequestError{StatusCode: 404, Message: "task not found"}
	}
	cp := *t
	return &cp, nil
}

func (f *fakeBackend) newTaskLocked(kind string) *model.Task {
	f.taskCounter++
	t := &model.Task{TaskID: fmt.Sprintf("task-%d", f.taskCounter), TaskType: kind, Status: model.TaskStatusProcessing}
	f.tasks[t.TaskID] = t
	cp := *t
	return &cp
}

func (f *fakeBackend) GenerateOutline(_ context.Context, projectID string) ([]model.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	p := f.projects[projectID]
	p.Pages = make([]model.Page, len(f.outline))
	for i := range f.outline {
		p.Pages[i] = f.outline[i].Clone()
	}
	out := make([]model.Page, len(p.Pages))
	for i := range p.Pages {
		out[i] = p.Pages[i].Clone()
	}
	return out, nil
}

func (f *fakeBackend) RefineOutline(_ context.Context, projectID, requirement string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generateErr != nil {
		return f.generateErr
	}
	p := f.projects[projectID]
	for i := range p.Pages {
		p.Pages[i].OutlineContent.Title += " (" + requirement + ")"
	}
	return nil
}

func (f *fakeBackend) GenerateDescriptions(_ context.Context, _ string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return f.newTaskLocked("GENERATE_DESCRIPTIONS"), nil
}

func (f *fakeBackend) GeneratePageDescription(_ context.Context, projectID, pageID string, _ bool) (*model.Page, error) {
	if f.descGate != nil {
		<-f.descGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	p := f.projects[projectID]
	idx := p.PageIndex(pageID)
	p.Pages[idx].DescriptionContent = &model.DescriptionContent{Text: "generated " + pageID}
	page := p.Pages[idx].Clone()
	return &page, nil
}

func (f *fakeBackend) RefineDescriptions(_ context.Context, _, _ string, _ []string) error {
	return nil
}

func (f *fakeBackend) GenerateImages(_ context.Context, _ string, pageIDs []string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageRequests = append(f.imageRequests, append([]string(nil), pageIDs...))
	if f.imagesErr != nil {
		return nil, f.imagesErr
	}
	return f.newTaskLocked("GENERATE_IMAGES"), nil
}

func (f *fakeBackend) EditPageImage(_ context.Context, _, _ string, _ *client.EditImageParams) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newTaskLocked("EDIT_PAGE_IMAGE"), nil
}

func (f *fakeBackend) ListImageVersions(_ context.Context, _, pageID string) ([]model.ImageVersion, error) {
	return []model.ImageVersion{
		{ID: "v1", PageID: pageID, VersionNumber: 1},
		{ID: "v2", PageID: pageID, VersionNumber: 2, IsCurrent: true},
	}, nil
}

func (f *fakeBackend) SetCurrentImageVersion(_ context.Context, projectID, pageID, versionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.projects[projectID]
	idx := p.PageIndex(pageID)
	p.Pages[idx].GeneratedImagePath = "/images/" + versionID + ".png"
	return nil
}
