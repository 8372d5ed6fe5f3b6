package model

import "time"

// ParseStatus is the server-side parse state of a reference file
type ParseStatus string

const (
	ParseStatusPending   ParseStatus = "pending"
	ParseStatusParsing   ParseStatus = "parsing"
	ParseStatusCompleted ParseStatus = "completed"
	ParseStatusFailed    ParseStatus = "failed"
)

// InProgress reports whether the file is still waiting for or undergoing parsing
func (s ParseStatus) InProgress() bool {
	return s == ParseStatusPending || s == ParseStatusParsing
}

// ReferenceFile is an uploaded document parsed server side
type ReferenceFile struct {
	ID              string      `json:"id"`
	ProjectID       string      `json:"project_id,omitempty"`
	Filename        string      `json:"filename"`
	FileSize        int64       `json:"file_size"`
	FileType        string      `json:"file_type,omitempty"`
	ParseStatus     ParseStatus `json:"parse_status"`
	MarkdownContent string      `json:"markdown_content,omitempty"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	CreatedAt       *time.Time  `json:"created_at,omitempty"`
}

// Material is an uploaded image usable as edit context
type Material struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Filename  string `json:"filename,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// UserTemplate is a template image saved by the user
type UserTemplate struct {
	TemplateID       string     `json:"template_id"`
	Name             string     `json:"name,omitempty"`
	TemplateImageURL string     `json:"template_image_url"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
}

// Upload is a file body handed to the backend as multipart form data
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}
