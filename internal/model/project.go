package model

import (
	"encoding/json"
	"strings"
	"time"
)

// CreationType decides which initial content field a project carries
type CreationType string

const (
	CreationTypeIdea        CreationType = "idea"
	CreationTypeOutline     CreationType = "outline"
	CreationTypeDescription CreationType = "description"
)

var ValidCreationTypes = []CreationType{
	CreationTypeIdea, CreationTypeOutline, CreationTypeDescription,
}

// Valid reports whether t is a known creation type
func (t CreationType) Valid() bool {
	for _, v := range ValidCreationTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Page status
type PageStatus string

const (
	PageStatusIdle                 PageStatus = ""
	PageStatusDraft                PageStatus = "DRAFT"
	PageStatusDescriptionGenerated PageStatus = "DESCRIPTION_GENERATED"
	PageStatusGenerating           PageStatus = "GENERATING"
	PageStatusCompleted            PageStatus = "COMPLETED"
	PageStatusFailed               PageStatus = "FAILED"
)

// Export methods used by editable PPTX conversion
const (
	DefaultExtractorMethod = "hybrid"
	DefaultInpaintMethod   = "hybrid"
)

// Project is one slide deck in progress
type Project struct {
	ID                    string       `json:"project_id"`
	CreationType          CreationType `json:"creation_type"`
	IdeaPrompt            string       `json:"idea_prompt,omitempty"`
	OutlineText           string       `json:"outline_text,omitempty"`
	DescriptionText       string       `json:"description_text,omitempty"`
	TemplateImagePath     string       `json:"template_image_path,omitempty"`
	TemplateStyle         string       `json:"template_style,omitempty"`
	ExtraRequirements     string       `json:"extra_requirements,omitempty"`
	ExportExtractorMethod string       `json:"export_extractor_method,omitempty"`
	ExportInpaintMethod   string       `json:"export_inpaint_method,omitempty"`
	Status                string       `json:"status,omitempty"`
	Pages                 []Page       `json:"pages"`
	CreatedAt             *time.Time   `json:"created_at,omitempty"`
	UpdatedAt             *time.Time   `json:"updated_at,omitempty"`
}

// UnmarshalJSON accepts both "project_id" and "id" as the identity field
func (p *Project) UnmarshalJSON(data []byte) error {
	type alias Project
	aux := struct {
		*alias
		AltID string `json:"id"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = aux.AltID
	}
	return nil
}

// Clone returns a deep copy of the project
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Pages = make([]Page, len(p.Pages))
	for i := range p.Pages {
		cp.Pages[i] = p.Pages[i].Clone()
	}
	return &cp
}

// PageIndex returns the position of the page with the given id, or -1
func (p *Project) PageIndex(pageID string) int {
	if p == nil || pageID == "" {
		return -1
	}
	for i := range p.Pages {
		if p.Pages[i].ID == pageID {
			return i
		}
	}
	return -1
}

// PageIDs returns the page ids in slide order
func (p *Project) PageIDs() []string {
	if p == nil {
		return nil
	}
	ids := make([]string, 0, len(p.Pages))
	for _, page := range p.Pages {
		ids = append(ids, page.ID)
	}
	return ids
}

// OutlineContent is the title and bullet points of one page
type OutlineContent struct {
	Title  string   `json:"title"`
	Points []string `json:"points"`
}

// IsEmpty reports whether neither title nor any point is set
func (o *OutlineContent) IsEmpty() bool {
	if o == nil {
		return true
	}
	if strings.TrimSpace(o.Title) != "" {
		return false
	}
	for _, p := range o.Points {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}

// DescriptionContent is either a single text or a list of text blocks
type DescriptionContent struct {
	Text        string   `json:"text,omitempty"`
	TextContent []string `json:"text_content,omitempty"`
}

// String flattens the description into one text
func (d *DescriptionContent) String() string {
	if d == nil {
		return ""
	}
	if d.Text != "" {
		return d.Text
	}
	return strings.Join(d.TextContent, "\n")
}

// IsEmpty reports whether the description carries no text
func (d *DescriptionContent) IsEmpty() bool {
	return strings.TrimSpace(d.String()) == ""
}

// Page is one slide within a project
type Page struct {
	ID                 string              `json:"page_id,omitempty"`
	OrderIndex         int                 `json:"order_index"`
	Part               string              `json:"part,omitempty"`
	OutlineContent     OutlineContent      `json:"outline_content"`
	DescriptionContent *DescriptionContent `json:"description_content,omitempty"`
	GeneratedImagePath string              `json:"generated_image_path,omitempty"`
	Status             PageStatus          `json:"status,omitempty"`
	CreatedAt          *time.Time          `json:"created_at,omitempty"`
	UpdatedAt          *time.Time          `json:"updated_at,omitempty"`
}

// UnmarshalJSON accepts both "page_id" and "id"
func (p *Page) UnmarshalJSON(data []byte) error {
	type alias Page
	aux := struct {
		*alias
		AltID string `json:"id"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = aux.AltID
	}
	return nil
}

// Clone returns a deep copy of the page
func (p Page) Clone() Page {
	cp := p
	cp.OutlineContent.Points = append([]string(nil), p.OutlineContent.Points...)
	if p.DescriptionContent != nil {
		d := *p.DescriptionContent
		d.TextContent = append([]string(nil), p.DescriptionContent.TextContent...)
		cp.DescriptionContent = &d
	}
	return cp
}

// HasDescription reports whether the page has non-empty description content
func (p *Page) HasDescription() bool {
	return p.DescriptionContent != nil && !p.DescriptionContent.IsEmpty()
}

// HasImage reports whether an image has been generated for the page
func (p *Page) HasImage() bool {
	return p.GeneratedImagePath != ""
}

// ImageVersion is one generated image of a page
type ImageVersion struct {
	ID            string     `json:"version_id"`
	PageID        string     `json:"page_id"`
	VersionNumber int        `json:"version_number"`
	ImagePath     string     `json:"image_path"`
	IsCurrent     bool       `json:"is_current"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

// ProjectSettings holds the per-project preferences editable until export
type ProjectSettings struct {
	TemplateStyle         *string `json:"template_style,omitempty"`
	ExtraRequirements     *string `json:"extra_requirements,omitempty"`
	ExportExtractorMethod *string `json:"export_extractor_method,omitempty" validate:"omitempty,oneof=hybrid mineru baidu"`
	ExportInpaintMethod   *string `json:"export_inpaint_method,omitempty" validate:"omitempty,oneof=hybrid generative baidu"`
}
