package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bananaslides/deckwizard/internal/config"
	"github.com/bananaslides/deckwizard/internal/model"
)

// ProjectAPI covers project and page CRUD
type ProjectAPI interface {
	CreateProject(ctx context.Context, req *CreateProjectRequest) (*model.Project, error)
	ListProjects(ctx context.Context, limit, offset int) (*ProjectList, error)
	GetProject(ctx context.Context, projectID string) (*model.Project, error)
	UpdateProject(ctx context.Context, projectID string, settings *model.ProjectSettings) error
	UploadTemplate(ctx context.Context, projectID string, file *model.Upload) error
	ReorderPages(ctx context.Context, projectID string, pageIDs []string) error
	AddPage(ctx context.Context, projectID string, req *AddPageRequest) (*model.Page, error)
	UpdatePage(ctx context.Context, projectID, pageID string, req *UpdatePageRequest) (*model.Page, error)
	DeletePage(ctx context.Context, projectID, pageID string) error
}

// TaskAPI reads backend async task status
type TaskAPI interface {
	GetTask(ctx context.Context, projectID, taskID string) (*model.Task, error)
}

// GenerationAPI covers outline and description synthesis
type GenerationAPI interface {
	TaskAPI
	GenerateOutline(ctx context.Context, projectID string) ([]model.Page, error)
	RefineOutline(ctx context.Context, projectID, requirement string, previous []string) error
	GenerateDescriptions(ctx context.Context, projectID string) (*model.Task, error)
	GeneratePageDescription(ctx context.Context, projectID, pageID string, force bool) (*model.Page, error)
	RefineDescriptions(ctx context.Context, projectID, requirement string, previous []string) error
}

// ImageAPI covers image generation and versions
type ImageAPI interface {
	GenerateImages(ctx context.Context, projectID string, pageIDs []string) (*model.Task, error)
	EditPageImage(ctx context.Context, projectID, pageID string, req *EditImageParams) (*model.Task, error)
	ListImageVersions(ctx context.Context, projectID, pageID string) ([]model.ImageVersion, error)
	SetCurrentImageVersion(ctx context.Context, projectID, pageID, versionID string) error
}

// ExportAPI covers synchronous and asynchronous exports
type ExportAPI interface {
	TaskAPI
	ExportPPTX(ctx context.Context, projectID string, pageIDs []string) (*model.ExportFile, error)
	ExportPDF(ctx context.Context, projectID string, pageIDs []string) (*model.ExportFile, error)
	ExportEditablePPTX(ctx context.Context, projectID, filename string, pageIDs []string) (string, error)
}

// FileAPI covers reference files, materials and templates
type FileAPI interface {
	UploadReferenceFile(ctx context.Context, projectID string, file *model.Upload) (*model.ReferenceFile, error)
	TriggerFileParse(ctx context.Context, fileID string) (*model.ReferenceFile, error)
	GetReferenceFile(ctx context.Context, fileID string) (*model.ReferenceFile, error)
	UploadMaterial(ctx context.Context, projectID string, file *model.Upload) (*model.Material, error)
	ListUserTemplates(ctx context.Context) ([]model.UserTemplate, error)
}

// SettingsAPI covers system and brand settings
type SettingsAPI interface {
	GetSettings(ctx context.Context) (*model.Settings, error)
	UpdateSettings(ctx context.Context, req *model.UpdateSettingsRequest) (*model.Settings, error)
	ResetSettings(ctx context.Context) (*model.Settings, error)
	VerifySettings(ctx context.Context) (*VerifyResult, error)
	GetBrandSettings(ctx context.Context) (*model.BrandSettings, error)
	VerifyAdminPassword(ctx context.Context, password string) (bool, error)
	UpdateBrandSettings(ctx context.Context, req *model.UpdateBrandRequest) (*model.BrandSettings, error)
}

// DeckAPI is the whole backend surface
type DeckAPI interface {
	ProjectAPI
	GenerationAPI
	ImageAPI
	ExportAPI
	FileAPI
	SettingsAPI
}

// DeckClient implements DeckAPI over HTTP/JSON
type DeckClient struct {
	httpClient       *http.Client
	generationClient *http.Client
	baseURL          string
	apiKey           string
}

// CreateProjectRequest creates a project from initial content
type CreateProjectRequest struct {
	CreationType    model.CreationType `json:"creation_type"`
	IdeaPrompt      string             `json:"idea_prompt,omitempty"`
	OutlineText     string             `json:"outline_text,omitempty"`
	DescriptionText string             `json:"description_text,omitempty"`
	TemplateStyle   string             `json:"template_style,omitempty"`
}

// ProjectList is one page of project history
type ProjectList struct {
	Projects []model.Project `json:"projects"`
	Total    int             `json:"total"`
}

// AddPageRequest appends a page
type AddPageRequest struct {
	OutlineContent model.OutlineContent `json:"outline_content"`
	OrderIndex     int                  `json:"order_index"`
	Part           string               `json:"part,omitempty"`
}

// UpdatePageRequest persists edited page content
type UpdatePageRequest struct {
	OutlineContent     *model.OutlineContent     `json:"outline_content,omitempty"`
	DescriptionContent *model.DescriptionContent `json:"description_content,omitempty"`
}

// EditImageParams is an image edit instruction with optional context
type EditImageParams struct {
	Instruction   string
	UseTemplate   bool
	DescImageURLs []string
	ContextFiles  []*model.Upload
}

// VerifyResult is the outcome of a settings connectivity check
type VerifyResult struct {
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
}

// NewDeckClient creates a new deck backend client
func NewDeckClient(cfg *config.BackendConfig) *DeckClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	genTimeout := time.Duration(cfg.GenerationTimeout) * time.Second
	if genTimeout <= 0 {
		genTimeout = 5 * time.Minute
	}
	return &DeckClient{
		httpClient:       &http.Client{Timeout: timeout},
		generationClient: &http.Client{Timeout: genTimeout},
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:           cfg.APIKey,
	}
}

// IsConfigured returns true if the client has a backend address
func (c *DeckClient) IsConfigured() bool {
	return c.baseURL != ""
}

// CreateProject creates a project server side
func (c *DeckClient) CreateProject(ctx context.Context, req *CreateProjectRequest) (*model.Project, error) {
	var result model.Project
	if err := c.post(ctx, c.httpClient, "/api/projects", req, &result); err != nil {
		return nil, err
	}
	if result.ID == "" {
		return nil, &RequestError{StatusCode: http.StatusOK, Message: "backend did not return a project id"}
	}
	return &result, nil
}

// ListProjects returns project history, newest first
func (c *DeckClient) ListProjects(ctx context.Context, limit, offset int) (*ProjectList, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var result ProjectList
	if err := c.get(ctx, "/api/projects?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetProject retrieves the authoritative project snapshot
func (c *DeckClient) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	var result model.Project
	if err := c.get(ctx, projectPath(projectID), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateProject applies a partial settings update
func (c *DeckClient) UpdateProject(ctx context.Context, projectID string, settings *model.ProjectSettings) error {
	return c.put(ctx, projectPath(projectID), settings, nil)
}

// UploadTemplate attaches a template image to the project
func (c *DeckClient) UploadTemplate(ctx context.Context, projectID string, file *model.Upload) error {
	form := &multipartForm{files: []formFile{{field: "template_image", upload: file}}}
	return c.postMultipart(ctx, c.httpClient, projectPath(projectID)+"/template", form, nil)
}

// ReorderPages replaces the page order wholesale
func (c *DeckClient) ReorderPages(ctx context.Context, projectID string, pageIDs []string) error {
	body := map[string][]string{"page_order": pageIDs}
	return c.post(ctx, c.httpClient, projectPath(projectID)+"/pages/reorder", body, nil)
}

// AddPage appends a page
func (c *DeckClient) AddPage(ctx context.Context, projectID string, req *AddPageRequest) (*model.Page, error) {
	var result model.Page
	if err := c.post(ctx, c.httpClient, projectPath(projectID)+"/pages", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdatePage persists page content
func (c *DeckClient) UpdatePage(ctx context.Context, projectID, pageID string, req *UpdatePageRequest) (*model.Page, error) {
	var result model.Page
	if err := c.put(ctx, pagePath(projectID, pageID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeletePage removes a page
func (c *DeckClient) DeletePage(ctx context.Context, projectID, pageID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+pagePath(projectID, pageID), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.doRequest(c.httpClient, req, nil)
}

// GenerateOutline synthesizes outlines for the whole project
func (c *DeckClient) GenerateOutline(ctx context.Context, projectID string) ([]model.Page, error) {
	var result struct {
		Pages []model.Page `json:"pages"`
	}
	if err := c.post(ctx, c.generationClient, projectPath(projectID)+"/generate/outline", map[string]string{}, &result); err != nil {
		return nil, err
	}
	return result.Pages, nil
}

// RefineOutline applies a natural language refinement to the outline
func (c *DeckClient) RefineOutline(ctx context.Context, projectID, requirement string, previous []string) error {
	body := refineBody(requirement, previous)
	return c.post(ctx, c.generationClient, projectPath(projectID)+"/refine/outline", body, nil)
}

// GenerateDescriptions starts description synthesis for all pages
func (c *DeckClient) GenerateDescriptions(ctx context.Context, projectID string) (*model.Task, error) {
	var result model.Task
	if err := c.post(ctx, c.generationClient, projectPath(projectID)+"/generate/descriptions", map[string]string{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GeneratePageDescription synthesizes the description of one page
func (c *DeckClient) GeneratePageDescription(ctx context.Context, projectID, pageID string, force bool) (*model.Page, error) {
	body := map[string]bool{"force_regenerate": force}
	var result model.Page
	if err := c.post(ctx, c.generationClient, pagePath(projectID, pageID)+"/generate/description", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RefineDescriptions applies a natural language refinement to all descriptions
func (c *DeckClient) RefineDescriptions(ctx context.Context, projectID, requirement string, previous []string) error {
	body := refineBody(requirement, previous)
	return c.post(ctx, c.generationClient, projectPath(projectID)+"/refine/descriptions", body, nil)
}

// GenerateImages starts image generation for the given pages, or all when empty
func (c *DeckClient) GenerateImages(ctx context.Context, projectID string, pageIDs []string) (*model.Task, error) {
	body := map[string]interface{}{}
	if len(pageIDs) > 0 {
		body["page_ids"] = pageIDs
	}
	var result model.Task
	if err := c.post(ctx, c.generationClient, projectPath(projectID)+"/generate/images", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EditPageImage regenerates one page image from an edit instruction
func (c *DeckClient) EditPageImage(ctx context.Context, projectID, pageID string, req *EditImageParams) (*model.Task, error) {
	contextJSON, err := json.Marshal(map[string]interface{}{
		"use_template":    req.UseTemplate,
		"desc_image_urls": req.DescImageURLs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}
	form := &multipartForm{
		fields: [][2]string{
			{"edit_instruction", req.Instruction},
			{"context_images", string(contextJSON)},
		},
	}
	for _, f := range req.ContextFiles {
		form.files = append(form.files, formFile{field: "context_images", upload: f})
	}
	var result model.Task
	if err := c.postMultipart(ctx, c.generationClient, pagePath(projectID, pageID)+"/edit/image", form, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListImageVersions returns the image history of a page
func (c *DeckClient) ListImageVersions(ctx context.Context, projectID, pageID string) ([]model.ImageVersion, error) {
	var result struct {
		Versions []model.ImageVersion `json:"versions"`
	}
	if err := c.get(ctx, pagePath(projectID, pageID)+"/image-versions", &result); err != nil {
		return nil, err
	}
	return result.Versions, nil
}

// SetCurrentImageVersion moves the current pointer of a page image
func (c *DeckClient) SetCurrentImageVersion(ctx context.Context, projectID, pageID, versionID string) error {
	endpoint := fmt.Sprintf("%s/image-versions/%s/set-current", pagePath(projectID, pageID), url.PathEscape(versionID))
	return c.post(ctx, c.httpClient, endpoint, map[string]string{}, nil)
}

// GetTask retrieves the status of a backend task
func (c *DeckClient) GetTask(ctx context.Context, projectID, taskID string) (*model.Task, error) {
	endpoint := fmt.Sprintf("%s/tasks/%s", projectPath(projectID), url.PathEscape(taskID))
	var result model.Task
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExportPPTX renders the project to PPTX synchronously
func (c *DeckClient) ExportPPTX(ctx context.Context, projectID string, pageIDs []string) (*model.ExportFile, error) {
	return c.exportFile(ctx, projectID, "pptx", pageIDs)
}

// ExportPDF renders the project to PDF synchronously
func (c *DeckClient) ExportPDF(ctx context.Context, projectID string, pageIDs []string) (*model.ExportFile, error) {
	return c.exportFile(ctx, projectID, "pdf", pageIDs)
}

func (c *DeckClient) exportFile(ctx context.Context, projectID, format string, pageIDs []string) (*model.ExportFile, error) {
	endpoint := fmt.Sprintf("%s/export/%s", projectPath(projectID), format)
	if len(pageIDs) > 0 {
		q := url.Values{}
		q.Set("page_ids", strings.Join(pageIDs, ","))
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var result model.ExportFile
	if err := c.doRequest(c.generationClient, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExportEditablePPTX starts an asynchronous editable PPTX conversion
func (c *DeckClient) ExportEditablePPTX(ctx context.Context, projectID, filename string, pageIDs []string) (string, error) {
	body := map[string]interface{}{}
	if filename != "" {
		body["filename"] = filename
	}
	if len(pageIDs) > 0 {
		body["page_ids"] = pageIDs
	}
	var result struct {
		TaskID string `json:"task_id"`
	}
	if err := c.post(ctx, c.generationClient, projectPath(projectID)+"/export/editable-pptx", body, &result); err != nil {
		return "", err
	}
	return result.TaskID, nil
}

// UploadReferenceFile uploads a document to be parsed server side
func (c *DeckClient) UploadReferenceFile(ctx context.Context, projectID string, file *model.Upload) (*model.ReferenceFile, error) {
	form := &multipartForm{files: []formFile{{field: "file", upload: file}}}
	if projectID != "" {
		form.fields = append(form.fields, [2]string{"project_id", projectID})
	}
	var result struct {
		File model.ReferenceFile `json:"file"`
	}
	if err := c.postMultipart(ctx, c.httpClient, "/api/reference-files/upload", form, &result); err != nil {
		return nil, err
	}
	return &result.File, nil
}

// TriggerFileParse asks the backend to start parsing a reference file
func (c *DeckClient) TriggerFileParse(ctx context.Context, fileID string) (*model.ReferenceFile, error) {
	var result struct {
		File model.ReferenceFile `json:"file"`
	}
	endpoint := fmt.Sprintf("/api/reference-files/%s/parse", url.PathEscape(fileID))
	if err := c.post(ctx, c.httpClient, endpoint, map[string]string{}, &result); err != nil {
		return nil, err
	}
	return &result.File, nil
}

// GetReferenceFile reads the current parse state of a reference file
func (c *DeckClient) GetReferenceFile(ctx context.Context, fileID string) (*model.ReferenceFile, error) {
	var result struct {
		File model.ReferenceFile `json:"file"`
	}
	if err := c.get(ctx, fmt.Sprintf("/api/reference-files/%s", url.PathEscape(fileID)), &result); err != nil {
		return nil, err
	}
	return &result.File, nil
}

// UploadMaterial uploads an image usable as edit context
func (c *DeckClient) UploadMaterial(ctx context.Context, projectID string, file *model.Upload) (*model.Material, error) {
	form := &multipartForm{files: []formFile{{field: "file", upload: file}}}
	if projectID != "" {
		form.fields = append(form.fields, [2]string{"project_id", projectID})
	}
	var result model.Material
	if err := c.postMultipart(ctx, c.httpClient, "/api/materials/upload", form, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListUserTemplates returns the saved template images
func (c *DeckClient) ListUserTemplates(ctx context.Context) ([]model.UserTemplate, error) {
	var result struct {
		Templates []model.UserTemplate `json:"templates"`
	}
	if err := c.get(ctx, "/api/user-templates", &result); err != nil {
		return nil, err
	}
	return result.Templates, nil
}

// GetSettings returns the system settings
func (c *DeckClient) GetSettings(ctx context.Context) (*model.Settings, error) {
	var result model.Settings
	if err := c.get(ctx, "/api/settings", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UpdateSettings applies a partial settings update
func (c *DeckClient) UpdateSettings(ctx context.Context, req *model.UpdateSettingsRequest) (*model.Settings, error) {
	var result model.Settings
	if err := c.put(ctx, "/api/settings", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ResetSettings restores default settings
func (c *DeckClient) ResetSettings(ctx context.Context) (*model.Settings, error) {
	var result model.Settings
	if err := c.post(ctx, c.httpClient, "/api/settings/reset", map[string]string{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifySettings checks that the configured AI provider is reachable
func (c *DeckClient) VerifySettings(ctx context.Context) (*VerifyResult, error) {
	var result VerifyResult
	if err := c.post(ctx, c.generationClient, "/api/settings/verify", map[string]string{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetBrandSettings returns the brand settings with stock defaults applied
func (c *DeckClient) GetBrandSettings(ctx context.Context) (*model.BrandSettings, error) {
	var result model.BrandSettings
	if err := c.get(ctx, "/api/settings/brand", &result); err != nil {
		return nil, err
	}
	branded := result.WithDefaults()
	return &branded, nil
}

// VerifyAdminPassword checks the brand admin password. A rejected password is
// reported as false with a nil error.
func (c *DeckClient) VerifyAdminPassword(ctx context.Context, password string) (bool, error) {
	if password == "" {
		return false, &ValidationError{Field: "password", Message: "password is required"}
	}
	err := c.post(ctx, c.httpClient, "/api/settings/brand/admin/verify", model.AdminVerifyRequest{Password: password}, nil)
	if err != nil {
		var re *RequestError
		if errors.As(err, &re) && (re.StatusCode == http.StatusUnauthorized || re.StatusCode == http.StatusForbidden) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UpdateBrandSettings updates brand fields, guarded by the admin password
func (c *DeckClient) UpdateBrandSettings(ctx context.Context, req *model.UpdateBrandRequest) (*model.BrandSettings, error) {
	if req.Password == "" {
		return nil, &ValidationError{Field: "password", Message: "password is required"}
	}
	var result model.BrandSettings
	if err := c.put(ctx, "/api/settings/brand/admin", req, &result); err != nil {
		return nil, err
	}
	branded := result.WithDefaults()
	return &branded, nil
}

func projectPath(projectID string) string {
	return "/api/projects/" + url.PathEscape(projectID)
}

func pagePath(projectID, pageID string) string {
	return projectPath(projectID) + "/pages/" + url.PathEscape(pageID)
}

func refineBody(requirement string, previous []string) map[string]interface{} {
	if previous == nil {
		previous = []string{}
	}
	return map[string]interface{}{
		"user_requirement":      requirement,
		"previous_requirements": previous,
	}
}

// post sends a POST request with JSON body
func (c *DeckClient) post(ctx context.Context, hc *http.Client, endpoint string, body interface{}, result interface{}) error {
	return c.sendJSON(ctx, hc, http.MethodPost, endpoint, body, result)
}

// put sends a PUT request with JSON body
func (c *DeckClient) put(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	return c.sendJSON(ctx, c.httpClient, http.MethodPut, endpoint, body, result)
}

func (c *DeckClient) sendJSON(ctx context.Context, hc *http.Client, method, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(hc, req, result)
}

// get sends a GET request and parses JSON response
func (c *DeckClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(c.httpClient, req, result)
}

type formFile struct {
	field  string
	upload *model.Upload
}

type multipartForm struct {
	fields [][2]string
	files  []formFile
}

// postMultipart sends a multipart/form-data POST
func (c *DeckClient) postMultipart(ctx context.Context, hc *http.Client, endpoint string, form *multipartForm, result interface{}) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range form.fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to write form field: %w", err)
		}
	}
	for _, f := range form.files {
		if f.upload == nil {
			continue
		}
		part, err := w.CreateFormFile(f.field, f.upload.Filename)
		if err != nil {
			return fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(f.upload.Data); err != nil {
			return fmt.Errorf("failed to write form file: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.doRequest(hc, req, result)
}

// doRequest executes an HTTP request and decodes the response envelope
func (c *DeckClient) doRequest(hc *http.Client, req *http.Request, result interface{}) error {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Printf("[Deck API] → %s %s", req.Method, req.URL.String())

	resp, err := hc.Do(req)
	if err != nil {
		log.Printf("[Deck API] ✗ %s %s — request failed: %v", req.Method, req.URL.String(), err)
		if isTimeout(err) {
			return &TimeoutError{Timeout: hc.Timeout}
		}
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Deck API] ✗ %s %s — failed to read response: %v", req.Method, req.URL.String(), err)
		if isTimeout(err) {
			return &TimeoutError{Timeout: hc.Timeout}
		}
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Deck API] ← %d %s %s — %s", resp.StatusCode, req.Method, req.URL.String(), truncate(respBody, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{
			StatusCode: resp.StatusCode,
			Code:       extractErrorCode(respBody),
			Message:    ExtractErrorMessage(respBody, fmt.Sprintf("request failed with status %d", resp.StatusCode)),
		}
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		log.Printf("[Deck API] ✗ unmarshal error for %s %s: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if env.Success != nil && !*env.Success {
		return &RequestError{
			StatusCode: resp.StatusCode,
			Code:       extractErrorCode(respBody),
			Message:    ExtractErrorMessage(respBody, "request failed"),
		}
	}

	if result == nil {
		return nil
	}

	payload := env.Data
	if env.Success == nil && len(env.Data) == 0 {
		// Older endpoints answer without the envelope
		payload = respBody
	}
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, result); err != nil {
		log.Printf("[Deck API] ✗ unmarshal error for %s %s: %v (body: %s)", req.Method, req.URL.String(), err, truncate(respBody, 512))
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
