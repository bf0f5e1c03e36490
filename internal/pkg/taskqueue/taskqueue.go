package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	redisc "github.com/bookbridge/core/internal/pkg/redis"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskSucceeded  TaskStatus = "succeeded"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// Task kinds.
const (
	KindSimplify   = "simplify"
	KindAudio      = "audio"
	KindPrecompute = "precompute"
)

// ErrTaskNotFound is returned for unknown or expired task ids.
var ErrTaskNotFound = errors.New("task not found")

// Task is a tracked generation job stored in Redis.
type Task struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Status    TaskStatus      `json:"status"`
	Retries   int             `json:"retries"`
	Progress  *Progress       `json:"progress,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Progress counts finished units of a batch task.
type Progress struct {
	Done   int `json:"done"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

const (
	keyPrefix   = "bb:task:"
	keyIndex    = "bb:tasks:index"   // sorted set: score=created_at, member=task_id
	keyDedupSet = "bb:tasks:dedup:"  // hash per kind: key -> task_id
	taskTTL     = 7 * 24 * time.Hour // tasks expire after 7 days
)

// Service manages the Redis-backed task records.
type Service struct {
	rc  *redisc.Client
	now func() time.Time
}

func NewService(rc *redisc.Client) *Service {
	return &Service{rc: rc, now: time.Now}
}

func (s *Service) taskKey(id string) string { return keyPrefix + id }

// Enqueue creates a task. While a non-terminal task with the same kind and
// key exists, that task is returned instead.
func (s *Service) Enqueue(ctx context.Context, kind, key string, payload interface{}) (*Task, bool, error) {
	if key != "" {
		existing, err := s.rc.Raw().HGet(ctx, keyDedupSet+kind, key).Result()
		if err == nil && existing != "" {
			task, err := s.GetByID(ctx, existing)
			if err == nil && !task.Status.Terminal() {
				return task, false, nil
			}
		}
	}

	var payloadBytes json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, false, err
		}
		payloadBytes = b
	}

	now := s.now()
	task := &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		Key:       key,
		Payload:   payloadBytes,
		Status:    TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(task)
	if err != nil {
		return nil, false, err
	}

	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	pipe.ZAdd(ctx, keyIndex, redis.Z{
		Score:  float64(task.CreatedAt.UnixMilli()),
		Member: task.ID,
	})
	if key != "" {
		pipe.HSet(ctx, keyDedupSet+kind, key, task.ID)
		pipe.Expire(ctx, keyDedupSet+kind, taskTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, err
	}
	return task, true, nil
}

// GetByID retrieves a task by its ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	data, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &task, nil
}

// Update applies mutate to the stored task and persists it.
func (s *Service) Update(ctx context.Context, id string, mutate func(*Task)) (*Task, error) {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	mutate(task)
	task.UpdatedAt = s.now()

	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(id), data, taskTTL)
	if task.Status.Terminal() && task.Key != "" {
		pipe.HDel(ctx, keyDedupSet+task.Kind, task.Key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return task, nil
}

// Start marks a task in-progress.
func (s *Service) Start(ctx context.Context, id string) error {
	_, err := s.Update(ctx, id, func(t *Task) { t.Status = TaskInProgress })
	return err
}

// Retry records another attempt on an in-progress task.
func (s *Service) Retry(ctx context.Context, id string, cause error) error {
	_, err := s.Update(ctx, id, func(t *Task) {
		t.Retries++
		if cause != nil {
			t.Error = cause.Error()
		}
	})
	return err
}

// Finish sets the terminal status with an optional result or error.
func (s *Service) Finish(ctx context.Context, id string, result interface{}, cause error) error {
	var resultBytes json.RawMessage
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return err
		}
		resultBytes = b
	}
	_, err := s.Update(ctx, id, func(t *Task) {
		t.Result = resultBytes
		if cause != nil {
			t.Status = TaskFailed
			t.Error = cause.Error()
			return
		}
		t.Status = TaskSucceeded
		t.Error = ""
	})
	return err
}

// SetProgress replaces the progress counters.
func (s *Service) SetProgress(ctx context.Context, id string, p Progress) error {
	_, err := s.Update(ctx, id, func(t *Task) { t.Progress = &p })
	return err
}

// List returns tasks matching optional filters, newest first.
func (s *Service) List(ctx context.Context, page, size int, kind string, status TaskStatus) ([]*Task, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	ids, err := s.rc.Raw().ZRevRange(ctx, keyIndex, 0, -1).Result()
	if err != nil {
		return nil, 0, err
	}

	var tasks []*Task
	var expired []interface{}
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			expired = append(expired, id)
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		if kind != "" && task.Kind != kind {
			continue
		}
		if status != "" && task.Status != status {
			continue
		}
		tasks = append(tasks, task)
	}
	if len(expired) > 0 {
		s.rc.Raw().ZRem(ctx, keyIndex, expired...)
	}

	total := int64(len(tasks))
	start := (page - 1) * size
	if start >= len(tasks) {
		return []*Task{}, total, nil
	}
	end := start + size
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[start:end], total, nil
}

// DeleteByID removes a single task by ID.
func (s *Service) DeleteByID(ctx context.Context, id string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.rc.Raw().TxPipeline()
	pipe.Del(ctx, s.taskKey(id))
	pipe.ZRem(ctx, keyIndex, id)
	if task.Key != "" {
		pipe.HDel(ctx, keyDedupSet+task.Kind, task.Key)
	}
	_, err = pipe.Exec(ctx)
	return err
}
