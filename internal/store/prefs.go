package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// CurrentProjectKey is the durable key holding the active project id
const CurrentProjectKey = "currentProjectId"

// Prefs is durable key/value storage for client state. Get returns an empty
// string for a missing key.
type Prefs interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// WithNamespace scopes every key of p under ns
func WithNamespace(p Prefs, ns string) Prefs {
	return &namespaced{prefs: p, ns: ns}
}

type namespaced struct {
	prefs Prefs
	ns    string
}

func (n *namespaced) key(k string) string { return n.ns + ":" + k }

func (n *namespaced) Get(ctx context.Context, key string) (string, error) {
	return n.prefs.Get(ctx, n.key(key))
}

func (n *namespaced) Set(ctx context.Context, key, value string) error {
	return n.prefs.Set(ctx, n.key(key), value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.prefs.Delete(ctx, n.key(key))
}

// MemoryPrefs keeps prefs in process memory
type MemoryPrefs struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryPrefs() *MemoryPrefs {
	return &MemoryPrefs{values: make(map[string]string)}
}

func (m *MemoryPrefs) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *MemoryPrefs) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryPrefs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// RedisPrefs keeps prefs in redis under prefs:<key>
type RedisPrefs struct {
	redis *redis.Client
}

func NewRedisPrefs(redisClient *redis.Client) *RedisPrefs {
	return &RedisPrefs{redis: redisClient}
}

func (r *RedisPrefs) Get(ctx context.Context, key string) (string, error) {
	val, err := r.redis.Get(ctx, "prefs:"+key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return val, nil
}

func (r *RedisPrefs) Set(ctx context.Context, key, value string) error {
	return r.redis.Set(ctx, "prefs:"+key, value, 0).Err()
}

func (r *RedisPrefs) Delete(ctx context.Context, key string) error {
	return r.redis.Del(ctx, "prefs:"+key).Err()
}

// FilePrefs keeps prefs in a YAML file, rewritten on every change
type FilePrefs struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// NewFilePrefs loads prefs from path. A missing file starts empty.
func NewFilePrefs(path string) (*FilePrefs, error) {
	f := &FilePrefs{path: path, values: make(map[string]string)}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("failed to read prefs file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f.values); err != nil {
		return nil, fmt.Errorf("failed to parse prefs file: %w", err)
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	return f, nil
}

func (f *FilePrefs) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *FilePrefs) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return f.flush()
}

func (f *FilePrefs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return f.flush()
}

func (f *FilePrefs) flush() error {
	data, err := yaml.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("failed to marshal prefs: %w", err)
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create prefs dir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write prefs file: %w", err)
	}
	return os.Rename(tmp, f.path)
}
