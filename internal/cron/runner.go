package cronrunner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Gate reports whether a named job may run right now. Jobs whose gate
// returns false are skipped for that tick.
type Gate func(ctx context.Context) bool

type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context

	mu   sync.Mutex
	jobs map[string]cron.EntryID
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		baseCtx: baseCtx,
		jobs:    map[string]cron.EntryID{},
	}
}

// Add registers job under name. A panicking job is logged and the schedule
// continues.
func (r *Runner) Add(name, spec string, gate Gate, job func(context.Context) error) (cron.EntryID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[name]; dup {
		return 0, fmt.Errorf("cron: job %q already registered", name)
	}
	id, err := r.cron.AddFunc(spec, func() { r.run(name, gate, job) })
	if err != nil {
		return 0, fmt.Errorf("cron: job %q: %w", name, err)
	}
	r.jobs[name] = id
	return id, nil
}

func (r *Runner) run(name string, gate Gate, job func(context.Context) error) {
	ctx := r.baseCtx
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("cron job panicked", zap.String("job", name), zap.Any("panic", rec))
		}
	}()
	if gate != nil && !gate(ctx) {
		r.logger.Debug("cron job disabled", zap.String("job", name))
		return
	}
	start := time.Now()
	if err := job(ctx); err != nil {
		r.logger.Warn("cron job failed", zap.String("job", name), zap.Duration("took", time.Since(start)), zap.Error(err))
		return
	}
	r.logger.Debug("cron job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
}

// Next returns the next scheduled time per job.
func (r *Runner) Next() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Time, len(r.jobs))
	for name, id := range r.jobs {
		out[name] = r.cron.Entry(id).Next
	}
	return out
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("jobs", len(r.jobs)))
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
