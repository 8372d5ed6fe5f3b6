package model

// DraftRequest sets the step one content
type DraftRequest struct {
	CreationType CreationType `json:"creationType" validate:"required,oneof=idea outline description"`
	Content      string       `json:"content" validate:"max=50000"`
}

// TemplateRequest is the form data of the step two choice. The template
// image itself travels as the "template" file part.
type TemplateRequest struct {
	TemplateStyle string `form:"templateStyle" validate:"max=2000"`
}

// SelectionRequest sets the step five multi-select state
type SelectionRequest struct {
	MultiSelect bool     `json:"multiSelect"`
	PageIDs     []string `json:"pageIds" validate:"omitempty,dive,required"`
}

// MovePageRequest is a drag-end event
type MovePageRequest struct {
	From *int `json:"from" validate:"required,min=0"`
	To   *int `json:"to" validate:"required,min=0"`
}

// ReorderRequest replaces the page order wholesale
type ReorderRequest struct {
	PageIDs []string `json:"pageIds" validate:"required,min=1,dive,required"`
}

// PagePatchRequest edits a page locally
type PagePatchRequest struct {
	OutlineContent     *OutlineContent     `json:"outline_content,omitempty"`
	DescriptionContent *DescriptionContent `json:"description_content,omitempty"`
	Save               bool                `json:"save"`
}

// GenerateRequest triggers a generation that may overwrite content
type GenerateRequest struct {
	Confirm bool     `json:"confirm"`
	PageIDs []string `json:"pageIds" validate:"omitempty,dive,required"`
}

// RefineRequest sends a natural language refinement
type RefineRequest struct {
	Requirement          string   `json:"requirement" validate:"required,max=5000"`
	PreviousRequirements []string `json:"previousRequirements"`
}

// EditImageRequest is the form data of an image edit
type EditImageRequest struct {
	Instruction   string   `form:"instruction" validate:"required,max=5000"`
	UseTemplate   bool     `form:"useTemplate"`
	DescImageURLs []string `form:"descImageUrls"`
}

// SetVersionRequest switches the current image version
type SetVersionRequest struct {
	VersionID string `json:"versionId" validate:"required"`
}

// RecoverRequest reopens a project at a wizard step
type RecoverRequest struct {
	ProjectID string `json:"projectId" validate:"required"`
	Step      string `json:"step"`
}

// SyncRequest re-reads a project, the current one when ProjectID is empty
type SyncRequest struct {
	ProjectID string `json:"projectId"`
}
