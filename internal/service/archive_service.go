package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/model"
)

// ExportArchiver copies finished export files from the backend into R2
type ExportArchiver struct {
	storage    client.StorageClient
	httpClient *http.Client
	baseURL    string
}

// NewExportArchiver creates an archiver. baseURL resolves relative download
// URLs returned by the backend.
func NewExportArchiver(storage client.StorageClient, baseURL string) *ExportArchiver {
	return &ExportArchiver{
		storage:    storage,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Archive uploads the task's export file and returns the stored copy's URL
func (a *ExportArchiver) Archive(ctx context.Context, task model.ExportTask) (string, error) {
	if a.storage == nil {
		return "", fmt.Errorf("storage not configured")
	}
	src, err := a.resolve(task.DownloadURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download export: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &client.RequestError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("download failed with status %d", resp.StatusCode)}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = exportContentType(task.Type)
	}

	// PutObject needs a seekable body to sign the payload
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read export: %w", err)
	}

	key := client.ExportKey(task.ProjectID, task.ID, task.Type.Extension())
	fileURL, err := a.storage.Upload(ctx, key, bytes.NewReader(data), contentType)
	if err != nil {
		return "", fmt.Errorf("failed to archive export: %w", err)
	}
	return fileURL, nil
}

func (a *ExportArchiver) resolve(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("export has no download URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid download URL: %w", err)
	}
	if u.IsAbs() {
		return raw, nil
	}
	if a.baseURL == "" {
		return "", fmt.Errorf("relative download URL %q without a backend base URL", raw)
	}
	return a.baseURL + "/" + strings.TrimLeft(raw, "/"), nil
}

func exportContentType(t model.ExportType) string {
	if t == model.ExportTypePDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
}
