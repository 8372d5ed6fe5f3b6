package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bananaslides/deckwizard/internal/client"
	"github.com/bananaslides/deckwizard/internal/model"
)

const maxConsecutiveErrors = 3

// ErrTaskNotFound is returned for an unknown local export id
var ErrTaskNotFound = errors.New("export task not found")

// Notifier receives every export task change
type Notifier interface {
	NotifyExport(task model.ExportTask)
}

// Archiver copies a finished export into durable storage and returns its URL
type Archiver interface {
	Archive(ctx context.Context, task model.ExportTask) (string, error)
}

// PollJob identifies one export to watch
type PollJob struct {
	LocalID   string `json:"local_id"`
	ProjectID string `json:"project_id"`
	TaskID    string `json:"task_id"`
}

// Scheduler runs poll jobs independently of each other
type Scheduler interface {
	Schedule(ctx context.Context, job PollJob) error
	Close()
}

// Options configures a Tracker
type Options struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	Scheduler    Scheduler
	Archiver     Archiver
	Notifier     Notifier
}

// Tracker keeps the set of export tasks and reconciles their terminal state
type Tracker struct {
	repo      Repository
	api       client.TaskAPI
	scheduler Scheduler
	archiver  Archiver
	notifier  Notifier
	interval  time.Duration
	timeout   time.Duration

	mu    sync.RWMutex
	tasks map[string]*model.ExportTask
	seq   map[string]int
	next  int
}

// New creates a tracker. Without a scheduler, polls run on local goroutines.
func New(repo Repository, api client.TaskAPI, opts Options) *Tracker {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	t := &Tracker{
		repo:     repo,
		api:      api,
		archiver: opts.Archiver,
		notifier: opts.Notifier,
		interval: opts.PollInterval,
		timeout:  opts.PollTimeout,
		tasks:    make(map[string]*model.ExportTask),
		seq:      make(map[string]int),
	}
	if t.interval <= 0 {
		t.interval = 2 * time.Second
	}
	if t.timeout <= 0 {
		t.timeout = 10 * time.Minute
	}
	t.scheduler = opts.Scheduler
	if t.scheduler == nil {
		t.scheduler = NewLocalScheduler(t)
	}
	return t
}

// AddTask inserts task or replaces the task with the same id
func (t *Tracker) AddTask(ctx context.Context, task model.ExportTask) error {
	if task.ID == "" {
		return &client.ValidationError{Field: "id", Message: "task id is required"}
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	t.mu.Lock()
	if existing, ok := t.tasks[task.ID]; ok && existing.Status.IsTerminal() && !task.Status.IsTerminal() {
		t.mu.Unlock()
		return fmt.Errorf("task %s already finished", task.ID)
	}
	t.putLocked(task)
	t.mu.Unlock()

	return t.persist(ctx, task)
}

func (t *Tracker) putLocked(task model.ExportTask) {
	cp := task.Clone()
	t.tasks[task.ID] = &cp
	if _, ok := t.seq[task.ID]; !ok {
		t.next++
		t.seq[task.ID] = t.next
	}
}

func (t *Tracker) persist(ctx context.Context, task model.ExportTask) error {
	if err := t.repo.Save(ctx, task); err != nil {
		log.Printf("[Export] Failed to persist task %s: %v", task.ID, err)
		return fmt.Errorf("failed to save task: %w", err)
	}
	if t.notifier != nil {
		t.notifier.NotifyExport(task.Clone())
	}
	return nil
}

// Task returns a copy of one tracked task
func (t *Tracker) Task(id string) (model.ExportTask, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	task, ok := t.tasks[id]
	if !ok {
		return model.ExportTask{}, false
	}
	return task.Clone(), true
}

// Tasks returns the tasks of a project, newest first. An empty projectID
// returns every task.
func (t *Tracker) Tasks(projectID string) []model.ExportTask {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.ExportTask, 0, len(t.tasks))
	for _, task := range t.tasks {
		if projectID != "" && task.ProjectID != projectID {
			continue
		}
		out = append(out, task.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return t.seq[out[i].ID] > t.seq[out[j].ID]
	})
	return out
}

// RemoveTask forgets a task. A running poll for it stops at its next tick.
func (t *Tracker) RemoveTask(ctx context.Context, id string) error {
	t.mu.Lock()
	_, ok := t.tasks[id]
	delete(t.tasks, id)
	delete(t.seq, id)
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t.repo.Delete(ctx, id)
}

// ClearFinished removes every terminal task of a project and returns how many
func (t *Tracker) ClearFinished(ctx context.Context, projectID string) (int, error) {
	var ids []string
	t.mu.Lock()
	for id, task := range t.tasks {
		if task.Status.IsTerminal() && (projectID == "" || task.ProjectID == projectID) {
			ids = append(ids, id)
			delete(t.tasks, id)
			delete(t.seq, id)
		}
	}
	t.mu.Unlock()

	for _, id := range ids {
		if err := t.repo.Delete(ctx, id); err != nil {
			return 0, fmt.Errorf("failed to delete task: %w", err)
		}
	}
	return len(ids), nil
}

// PollTask attaches a server task id to a local task and starts watching it
func (t *Tracker) PollTask(ctx context.Context, localID, projectID, taskID string) error {
	if taskID == "" {
		return &client.ValidationError{Field: "taskId", Message: "server task id is required"}
	}
	return t.scheduler.Schedule(ctx, PollJob{LocalID: localID, ProjectID: projectID, TaskID: taskID})
}

// RestoreActiveTasks reloads persisted tasks and re-attaches polling to the
// ones still processing. It returns the number of polls scheduled.
func (t *Tracker) RestoreActiveTasks(ctx context.Context) (int, error) {
	stored, err := t.repo.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load tasks: %w", err)
	}
	sort.Slice(stored, func(i, j int) bool {
		return stored[i].CreatedAt.Before(stored[j].CreatedAt)
	})

	var active []model.ExportTask
	t.mu.Lock()
	for _, task := range stored {
		if _, known := t.tasks[task.ID]; known {
			continue
		}
		t.putLocked(task)
		if task.Status == model.ExportStatusProcessing {
			active = append(active, task)
		}
	}
	t.mu.Unlock()

	var (
		mu        sync.Mutex
		scheduled int
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range active {
		task := task
		g.Go(func() error {
			if task.TaskID == "" {
				// The backend never acknowledged it, nothing to re-attach to
				return t.finish(gctx, task.ID, model.ExportStatusFailed, "", "export was interrupted before it started")
			}
			if err := t.PollTask(gctx, task.ID, task.ProjectID, task.TaskID); err != nil {
				return err
			}
			mu.Lock()
			scheduled++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return scheduled, fmt.Errorf("failed to restore tasks: %w", err)
	}

	if scheduled > 0 {
		log.Printf("[Export] Restored %d active export task(s)", scheduled)
	}
	return scheduled, nil
}

// Run polls one server task until it ends, the deadline passes or ctx is done.
// On cancellation the task stays PROCESSING so it can be re-attached later.
func (t *Tracker) Run(ctx context.Context, job PollJob) error {
	deadline := time.Now().Add(t.timeout)
	attempt := 0
	failures := 0

	for time.Now().Before(deadline) {
		if _, ok := t.Task(job.LocalID); !ok {
			log.Printf("[Export] Task %s removed, stop polling", job.LocalID)
			return nil
		}

		attempt++
		wait := t.interval
		status, err := t.api.GetTask(ctx, job.ProjectID, job.TaskID)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("[Export] Poll export (task=%s) — context cancelled", job.TaskID)
				return ctx.Err()
			}
			failures++
			log.Printf("[Export] Poll export #%d (task=%s) — error: %v", attempt, job.TaskID, err)
			if failures >= maxConsecutiveErrors {
				return t.finish(ctx, job.LocalID, model.ExportStatusFailed, "", client.UserMessage(err))
			}
			wait = t.interval << failures
		} else {
			failures = 0
			log.Printf("[Export] Poll export #%d (task=%s) — status: %s", attempt, job.TaskID, status.Status)
			switch status.Status {
			case model.TaskStatusCompleted:
				return t.complete(ctx, job.LocalID, status)
			case model.TaskStatusFailed:
				msg := status.ErrorMessage
				if msg == "" {
					msg = "export failed"
				}
				return t.finish(ctx, job.LocalID, model.ExportStatusFailed, "", msg)
			default:
				t.updateProgress(ctx, job.LocalID, status.Progress.Percent())
			}
		}

		select {
		case <-ctx.Done():
			log.Printf("[Export] Poll export (task=%s) — context cancelled", job.TaskID)
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return t.finish(ctx, job.LocalID, model.ExportStatusFailed, "",
		fmt.Sprintf("export timed out after %v", t.timeout))
}

func (t *Tracker) complete(ctx context.Context, localID string, status *model.Task) error {
	downloadURL := status.DownloadURL
	if downloadURL == "" {
		return t.finish(ctx, localID, model.ExportStatusFailed, "", "export finished without a download URL")
	}
	if t.archiver != nil {
		if task, ok := t.Task(localID); ok {
			task.DownloadURL = downloadURL
			if archived, err := t.archiver.Archive(ctx, task); err != nil {
				log.Printf("[Export] Archive of task %s failed, keeping backend URL: %v", localID, err)
			} else {
				downloadURL = archived
			}
		}
	}
	return t.finish(ctx, localID, model.ExportStatusCompleted, downloadURL, "")
}

func (t *Tracker) finish(ctx context.Context, localID string, status model.ExportStatus, downloadURL, errMsg string) error {
	t.mu.Lock()
	current, ok := t.tasks[localID]
	if !ok || current.Status.IsTerminal() {
		t.mu.Unlock()
		return nil
	}
	task := current.Clone()
	task.Status = status
	task.DownloadURL = downloadURL
	task.ErrorMessage = errMsg
	if status == model.ExportStatusCompleted {
		task.Progress = 100
	}
	task.UpdatedAt = time.Now()
	t.putLocked(task)
	t.mu.Unlock()

	log.Printf("[Export] Task %s (project=%s) %s", task.ID, task.ProjectID, status)
	// Persist even when the caller is shutting down
	return t.persist(context.WithoutCancel(ctx), task)
}

func (t *Tracker) updateProgress(ctx context.Context, localID string, percent int) {
	t.mu.Lock()
	current, ok := t.tasks[localID]
	if !ok || current.Status.IsTerminal() || current.Progress == percent {
		t.mu.Unlock()
		return
	}
	task := current.Clone()
	task.Progress = percent
	task.UpdatedAt = time.Now()
	t.putLocked(task)
	t.mu.Unlock()

	_ = t.persist(ctx, task)
}

// Close stops local polls and waits for them to return
func (t *Tracker) Close() {
	t.scheduler.Close()
}
