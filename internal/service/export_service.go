package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/model"
	"github.com/bananaslides/deckwizard/internal/tracker"
)

// ExportService starts exports and registers them with the tracker
type ExportService struct {
	api      client.ExportAPI
	tracker  *tracker.Tracker
	archiver tracker.Archiver
}

func NewExportService(api client.ExportAPI, t *tracker.Tracker, archiver tracker.Archiver) *ExportService {
	return &ExportService{
		api:      api,
		tracker:  t,
		archiver: archiver,
	}
}

// NewExportID returns a local export id, unique within the process
func NewExportID() string {
	return fmt.Sprintf("export-%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}

// Export exports pageIDs (every page when empty) of a project. pptx and pdf
// finish before returning; editable-pptx returns a PROCESSING task that the
// tracker keeps polling. Failures are recorded as a FAILED task too.
func (s *ExportService) Export(ctx context.Context, projectID string, exportType model.ExportType, pageIDs []string) (model.ExportTask, error) {
	if projectID == "" {
		return model.ExportTask{}, &client.ValidationError{Field: "projectId", Message: "project id is required"}
	}

	task := model.ExportTask{
		ID:        NewExportID(),
		ProjectID: projectID,
		Type:      exportType,
		PageIDs:   append([]string(nil), pageIDs...),
	}

	var err error
	switch exportType {
	case model.ExportTypePPTX, model.ExportTypePDF:
		task, err = s.exportSync(ctx, task)
	case model.ExportTypeEditablePPTX:
		task, err = s.exportAsync(ctx, task)
	default:
		return model.ExportTask{}, &client.ValidationError{Field: "type", Message: fmt.Sprintf("unsupported export type %q", exportType)}
	}
	if err == nil {
		return task, nil
	}

	log.Printf("[Export] %s export of project %s failed: %v", exportType, projectID, err)
	task.TaskID = ""
	task.Status = model.ExportStatusFailed
	task.DownloadURL = ""
	task.ErrorMessage = client.UserMessage(err)
	if addErr := s.tracker.AddTask(ctx, task); addErr != nil {
		log.Printf("[Export] Failed to record failed task %s: %v", task.ID, addErr)
	}
	return task, err
}

func (s *ExportService) exportSync(ctx context.Context, task model.ExportTask) (model.ExportTask, error) {
	var (
		file *model.ExportFile
		err  error
	)
	if task.Type == model.ExportTypePDF {
		file, err = s.api.ExportPDF(ctx, task.ProjectID, task.PageIDs)
	} else {
		file, err = s.api.ExportPPTX(ctx, task.ProjectID, task.PageIDs)
	}
	if err != nil {
		return task, fmt.Errorf("failed to export %s: %w", task.Type, err)
	}
	if file == nil || file.URL() == "" {
		return task, errors.New("export returned no download URL")
	}

	task.Status = model.ExportStatusCompleted
	task.Progress = 100
	task.DownloadURL = file.URL()
	if s.archiver != nil {
		if archived, err := s.archiver.Archive(ctx, task); err != nil {
			log.Printf("[Export] Archive of task %s failed, keeping backend URL: %v", task.ID, err)
		} else {
			task.DownloadURL = archived
		}
	}

	if err := s.tracker.AddTask(ctx, task); err != nil {
		return task, err
	}
	log.Printf("[Export] %s export of project %s completed", task.Type, task.ProjectID)
	return task, nil
}

func (s *ExportService) exportAsync(ctx context.Context, task model.ExportTask) (model.ExportTask, error) {
	task.Status = model.ExportStatusProcessing
	if err := s.tracker.AddTask(ctx, task); err != nil {
		return task, err
	}

	taskID, err := s.api.ExportEditablePPTX(ctx, task.ProjectID, "", task.PageIDs)
	if err != nil {
		return task, fmt.Errorf("failed to start editable export: %w", err)
	}
	if taskID == "" {
		return task, errors.New("export was accepted without a task id")
	}

	task.TaskID = taskID
	if err := s.tracker.AddTask(ctx, task); err != nil {
		return task, err
	}
	if err := s.tracker.PollTask(ctx, task.ID, task.ProjectID, taskID); err != nil {
		return task, fmt.Errorf("failed to schedule export poll: %w", err)
	}

	log.Printf("[Export] Editable export %s of project %s started (task=%s)", task.ID, task.ProjectID, taskID)
	return task, nil
}
