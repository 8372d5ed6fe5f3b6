package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/bananaslides/deckwizard/internal/model"
)

// Repository persists export tasks across restarts
type Repository interface {
	Load(ctx context.Context) ([]model.ExportTask, error)
	Save(ctx context.Context, task model.ExportTask) error
	Delete(ctx context.Context, id string) error
}

// MemoryRepository keeps tasks for the life of the process
type MemoryRepository struct {
	mu    sync.RWMutex
	tasks map[string]model.ExportTask
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tasks: make(map[string]model.ExportTask)}
}

func (r *MemoryRepository) Load(_ context.Context) ([]model.ExportTask, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ExportTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, task.Clone())
	}
	return out, nil
}

func (r *MemoryRepository) Save(_ context.Context, task model.ExportTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = task.Clone()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}

const (
	redisTaskKey  = "export_task:%s"
	redisIndexKey = "export_tasks:index"
	redisTaskTTL  = 24 * time.Hour
)

// RedisRepository stores each task as a JSON record with a 24h TTL, plus an
// index set so Load can find them
type RedisRepository struct {
	redis *redis.Client
}

func NewRedisRepository(redisClient *redis.Client) *RedisRepository {
	return &RedisRepository{redis: redisClient}
}

func (r *RedisRepository) Load(ctx context.Context) ([]model.ExportTask, error) {
	ids, err := r.redis.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task index: %w", err)
	}

	tasks := make([]model.ExportTask, 0, len(ids))
	for _, id := range ids {
		data, err := r.redis.Get(ctx, fmt.Sprintf(redisTaskKey, id)).Bytes()
		if err != nil {
			if err == redis.Nil {
				// Expired, drop it from the index
				r.redis.SRem(ctx, redisIndexKey, id)
				continue
			}
			return nil, fmt.Errorf("failed to get task: %w", err)
		}
		var task model.ExportTask
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (r *RedisRepository) Save(ctx context.Context, task model.ExportTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(redisTaskKey, task.ID), data, redisTaskTTL)
	pipe.SAdd(ctx, redisIndexKey, task.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	pipe := r.redis.TxPipeline()
	pipe.Del(ctx, fmt.Sprintf(redisTaskKey, id))
	pipe.SRem(ctx, redisIndexKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

// FileRepository stores tasks in a YAML file, rewritten on every change
type FileRepository struct {
	mu    sync.Mutex
	path  string
	tasks map[string]model.ExportTask
}

type fileState struct {
	Tasks []model.ExportTask `yaml:"tasks"`
}

// NewFileRepository loads tasks from path. A missing file starts empty.
func NewFileRepository(path string) (*FileRepository, error) {
	r := &FileRepository{path: path, tasks: make(map[string]model.ExportTask)}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}
	var state fileState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse task file: %w", err)
	}
	for _, task := range state.Tasks {
		r.tasks[task.ID] = task
	}
	return r, nil
}

func (r *FileRepository) Load(_ context.Context) ([]model.ExportTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked(), nil
}

func (r *FileRepository) Save(_ context.Context, task model.ExportTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = task.Clone()
	return r.flush()
}

func (r *FileRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return nil
	}
	delete(r.tasks, id)
	return r.flush()
}

func (r *FileRepository) sortedLocked() []model.ExportTask {
	out := make([]model.ExportTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, task.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *FileRepository) flush() error {
	data, err := yaml.Marshal(fileState{Tasks: r.sortedLocked()})
	if err != nil {
		return fmt.Errorf("failed to marshal tasks: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create task dir: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write task file: %w", err)
	}
	return os.Rename(tmp, r.path)
}
