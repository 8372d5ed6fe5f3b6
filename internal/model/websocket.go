package model

// WebSocket message types
const (
	WSMessageTypeExport  = "export"
	WSMessageTypeProject = "project"
	WSMessageTypeError   = "error"
	WSMessageTypePing    = "ping"
	WSMessageTypePong    = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSExportMessage carries an export task update
type WSExportMessage struct {
	Type string     `json:"type"`
	Task ExportTask `json:"task"`
}

// WSProjectMessage carries a project snapshot after a store mutation
type WSProjectMessage struct {
	Type                 string            `json:"type"`
	Project              *Project          `json:"project"`
	IsGlobalLoading      bool              `json:"isGlobalLoading"`
	PageGeneratingTasks  map[string]string `json:"pageGeneratingTasks"`
	PageDescriptionTasks map[string]string `json:"pageDescriptionGeneratingTasks"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	Topic string  `json:"topic"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
