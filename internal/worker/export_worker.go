package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bananaslides/deckwizard/internal/tracker"
)

const (
	TaskTypeExportPoll = "export:poll"
	QueueExports       = "exports"
)

// NewExportPollTask wraps a poll job into an asynq task
func NewExportPollTask(job tracker.PollJob) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal poll job: %w", err)
	}
	return asynq.NewTask(TaskTypeExportPoll, data), nil
}

// AsynqScheduler hands export polls to the asynq queue so they survive a
// restart of the process that started them
type AsynqScheduler struct {
	client  *asynq.Client
	timeout time.Duration
}

// NewAsynqScheduler creates a scheduler. pollTimeout bounds a single poll
// and must match the tracker's.
func NewAsynqScheduler(client *asynq.Client, pollTimeout time.Duration) *AsynqScheduler {
	return &AsynqScheduler{
		client:  client,
		timeout: pollTimeout,
	}
}

// Schedule enqueues job. A job already queued for the same local task is kept.
func (s *AsynqScheduler) Schedule(ctx context.Context, job tracker.PollJob) error {
	task, err := NewExportPollTask(job)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueExports),
		asynq.TaskID("export:"+job.LocalID),
		asynq.MaxRetry(3),
		asynq.Timeout(s.timeout+time.Minute),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		log.Printf("[Worker] Poll of export %s already queued", job.LocalID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Close releases the asynq client
func (s *AsynqScheduler) Close() {
	if err := s.client.Close(); err != nil {
		log.Printf("[Worker] Failed to close asynq client: %v", err)
	}
}

// ExportPollWorker processes export poll tasks
type ExportPollWorker struct {
	runner tracker.Runner
}

// NewExportPollWorker creates a new export poll worker
func NewExportPollWorker(runner tracker.Runner) *ExportPollWorker {
	return &ExportPollWorker{runner: runner}
}

// ProcessTask polls one export until it ends. A cancelled poll is retried,
// which re-attaches it after a restart.
func (w *ExportPollWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var job tracker.PollJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if job.LocalID == "" || job.TaskID == "" {
		return fmt.Errorf("poll job without task ids: %w", asynq.SkipRetry)
	}

	log.Printf("[Worker] Starting export poll: %s (task=%s)", job.LocalID, job.TaskID)
	if err := w.runner.Run(ctx, job); err != nil {
		return fmt.Errorf("export poll %s: %w", job.LocalID, err)
	}
	log.Printf("[Worker] Export poll %s finished", job.LocalID)
	return nil
}
