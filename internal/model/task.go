package model

import "time"

// TaskStatus is the status of a backend async task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// IsTerminal reports whether the status will not change again
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskProgress is the per-page progress reported by a batch task
type TaskProgress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Percent returns completion in the 0-100 range
func (p *TaskProgress) Percent() int {
	if p == nil || p.Total <= 0 {
		return 0
	}
	return (p.Completed + p.Failed) * 100 / p.Total
}

// Task is a backend async task (generation or export)
type Task struct {
	TaskID       string        `json:"task_id"`
	TaskType     string        `json:"task_type,omitempty"`
	Status       TaskStatus    `json:"status"`
	Progress     *TaskProgress `json:"progress,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	DownloadURL  string        `json:"download_url,omitempty"`
	PageIDs      []string      `json:"page_ids,omitempty"`
	CreatedAt    *time.Time    `json:"created_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// ExportType is the file format of an export
type ExportType string

const (
	ExportTypePPTX         ExportType = "pptx"
	ExportTypePDF          ExportType = "pdf"
	ExportTypeEditablePPTX ExportType = "editable-pptx"
)

// IsAsync reports whether the backend runs the export as a task
func (t ExportType) IsAsync() bool {
	return t == ExportTypeEditablePPTX
}

// Extension returns the file extension produced by the export
func (t ExportType) Extension() string {
	if t == ExportTypePDF {
		return "pdf"
	}
	return "pptx"
}

// ExportStatus is the client-tracked state of an export
type ExportStatus string

const (
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusCompleted  ExportStatus = "COMPLETED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// IsTerminal reports whether the export will not change again
func (s ExportStatus) IsTerminal() bool {
	return s == ExportStatusCompleted || s == ExportStatusFailed
}

// ExportTask tracks one export job
type ExportTask struct {
	ID           string       `json:"id" yaml:"id"`
	TaskID       string       `json:"taskId" yaml:"task_id"`
	ProjectID    string       `json:"projectId" yaml:"project_id"`
	Type         ExportType   `json:"type" yaml:"type"`
	Status       ExportStatus `json:"status" yaml:"status"`
	DownloadURL  string       `json:"downloadUrl,omitempty" yaml:"download_url,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty" yaml:"error_message,omitempty"`
	PageIDs      []string     `json:"pageIds,omitempty" yaml:"page_ids,omitempty"`
	Progress     int          `json:"progress" yaml:"progress"`
	CreatedAt    time.Time    `json:"createdAt" yaml:"created_at"`
	UpdatedAt    time.Time    `json:"updatedAt" yaml:"updated_at"`
}

// Clone returns a copy that shares no slices with t
func (t ExportTask) Clone() ExportTask {
	cp := t
	cp.PageIDs = append([]string(nil), t.PageIDs...)
	return cp
}

// ExportRequest starts an export of the current project
type ExportRequest struct {
	Type    ExportType `json:"type" validate:"required,oneof=pptx pdf editable-pptx"`
	PageIDs []string   `json:"pageIds" validate:"omitempty,dive,required"`
}

// ExportFile is the synchronous export result returned by the backend
type ExportFile struct {
	DownloadURL         string `json:"download_url"`
	DownloadURLAbsolute string `json:"download_url_absolute"`
}

// URL returns the preferred download URL
func (f *ExportFile) URL() string {
	if f.DownloadURL != "" {
		return f.DownloadURL
	}
	return f.DownloadURLAbsolute
}
