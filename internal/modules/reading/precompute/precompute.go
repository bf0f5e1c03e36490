// Package precompute fills the simplification and audio caches for a whole
// book ahead of readers.
package precompute

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bookbridge/core/internal/models"
	"github.com/bookbridge/core/internal/modules/reading/cefr"
	"github.com/bookbridge/core/internal/modules/reading/delivery"
	"github.com/bookbridge/core/internal/pkg/logx"
	"github.com/bookbridge/core/internal/pkg/taskqueue"
)

var ErrNoChunks = errors.New("book has no chunks")

type ChunkLister interface {
	Chunks(ctx context.Context, bookID string) ([]models.ChunkModel, error)
}

// Reader is the delivery surface a precompute run drives.
type Reader interface {
	GetReadableChunk(ctx context.Context, req delivery.Request) (*delivery.Bundle, error)
	Simplify(ctx context.Context, bookID string, index int, level cefr.Level) (*models.SimplificationModel, error)
}

// Job selects what to generate. Empty Levels means all six.
type Job struct {
	BookID  string       `json:"book_id"`
	Levels  []cefr.Level `json:"levels"`
	VoiceID string       `json:"voice,omitempty"`
	Audio   bool         `json:"audio"`
}

func (j Job) dedupKey() string {
	levels := make([]string, len(j.Levels))
	for i, l := range j.Levels {
		levels[i] = string(l)
	}
	return fmt.Sprintf("%s|%s|%s|%t", j.BookID, strings.Join(levels, ","), j.VoiceID, j.Audio)
}

type Failure struct {
	ChunkIndex int        `json:"chunk_index"`
	Level      cefr.Level `json:"level"`
	Error      string     `json:"error"`
}

type Report struct {
	Total    int       `json:"total"`
	Done     int       `json:"done"`
	Failed   int       `json:"failed"`
	Failures []Failure `json:"failures,omitempty"`
}

type Service struct {
	chunks      ChunkLister
	reader      Reader
	tasks       *taskqueue.Service
	concurrency int
	log         *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a runner. tasks may be nil when only Run is used.
func New(chunks ChunkLister, reader Reader, tasks *taskqueue.Service, concurrency int, log *zap.Logger) *Service {
	if concurrency < 1 {
		concurrency = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		chunks:      chunks,
		reader:      reader,
		tasks:       tasks,
		concurrency: concurrency,
		log:         logx.OrNop(log).Named("precompute"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run generates every chunk × level of the job with bounded concurrency. A
// failed unit is recorded in the report and does not stop the others.
func (s *Service) Run(ctx context.Context, job Job, progress func(taskqueue.Progress)) (*Report, error) {
	if len(job.Levels) == 0 {
		job.Levels = append([]cefr.Level(nil), cefr.All...)
	}
	for _, l := range job.Levels {
		if !l.Valid() {
			return nil, fmt.Errorf("%w: level %q", delivery.ErrInvalidRequest, l)
		}
	}
	chunks, err := s.chunks.Chunks(ctx, job.BookID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoChunks, job.BookID)
	}

	report := &Report{Total: len(chunks) * len(job.Levels)}
	var mu sync.Mutex
	record := func(index int, level cefr.Level, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, Failure{ChunkIndex: index, Level: level, Error: err.Error()})
		} else {
			report.Done++
		}
		if progress != nil {
			progress(taskqueue.Progress{Done: report.Done, Failed: report.Failed, Total: report.Total})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, c := range chunks {
		for _, level := range job.Levels {
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				record(c.Index, level, s.one(gctx, job, c.Index, level))
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	s.log.Info("precompute finished",
		zap.String("book", job.BookID),
		zap.Int("total", report.Total),
		zap.Int("done", report.Done),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (s *Service) one(ctx context.Context, job Job, index int, level cefr.Level) error {
	if !job.Audio {
		_, err := s.reader.Simplify(ctx, job.BookID, index, level)
		return err
	}
	b, err := s.reader.GetReadableChunk(ctx, delivery.Request{
		BookID:     job.BookID,
		ChunkIndex: index,
		Level:      level,
		VoiceID:    job.VoiceID,
	})
	if err != nil {
		return err
	}
	if len(b.Notices) > 0 {
		return errors.New(strings.Join(b.Notices, "; "))
	}
	return nil
}

// Enqueue records a precompute task and runs it in the background. An
// unfinished task for the same job is returned instead of starting another.
func (s *Service) Enqueue(ctx context.Context, job Job) (*taskqueue.Task, error) {
	if s.tasks == nil {
		return nil, errors.New("task tracking is not configured")
	}
	task, created, err := s.tasks.Enqueue(ctx, taskqueue.KindPrecompute, job.dedupKey(), job)
	if err != nil {
		return nil, err
	}
	if created {
		s.wg.Add(1)
		go s.runTask(task.ID, job)
	}
	return task, nil
}

func (s *Service) runTask(id string, job Job) {
	defer s.wg.Done()
	ctx := s.ctx
	if err := s.tasks.Start(ctx, id); err != nil {
		s.log.Warn("start task failed", zap.String("task", id), zap.Error(err))
	}
	report, err := s.Run(ctx, job, func(p taskqueue.Progress) {
		if err := s.tasks.SetProgress(ctx, id, p); err != nil {
			s.log.Debug("progress update failed", zap.String("task", id), zap.Error(err))
		}
	})
	if err == nil && report.Failed > 0 {
		err = fmt.Errorf("%d of %d units failed", report.Failed, report.Total)
	}
	// the task record must be finished even when the run was cancelled
	if ferr := s.tasks.Finish(context.WithoutCancel(ctx), id, report, err); ferr != nil {
		s.log.Warn("finish task failed", zap.String("task", id), zap.Error(ferr))
	}
}

// Shutdown cancels running tasks and waits for them to record their state.
func (s *Service) Shutdown() {
	s.cancel()
	s.wg.Wait()
}
