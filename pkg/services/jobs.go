package services

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const jobLeaseKeyPrefix = "reviewpilot:job_lease:"

// Job is work repeated on a fixed interval.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Leaser hands out time-bound exclusive leases so only one instance runs a tick.
type Leaser interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
}

type redisLeaser struct {
	client *redis.Client
	holder string
}

// NewLeaser returns a Redis-backed leaser, or one that always grants the lease when
// client is nil (single-instance deployments).
func NewLeaser(client *redis.Client) Leaser {
	if client == nil {
		return localLeaser{}
	}
	host, _ := os.Hostname()
	return &redisLeaser{client: client, holder: fmt.Sprintf("%s:%s", host, uuid.NewString())}
}

func (l *redisLeaser) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, jobLeaseKeyPrefix+name, l.holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return ok, nil
}

type localLeaser struct{}

func (localLeaser) Acquire(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

// Scheduler runs jobs on tickers until its context is cancelled.
type Scheduler struct {
	jobs   []Job
	leaser Leaser
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler for jobs. Jobs with a non-positive interval are skipped.
func NewScheduler(leaser Leaser, logger *zap.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, leaser: leaser, logger: logger.Named("scheduler")}
}

// Start launches one goroutine per job. Each job runs once immediately, then every interval.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.logger.Info("Job disabled", zap.String("job", job.Name))
			continue
		}
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
}

// Wait blocks until every job loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	s.logger.Info("Job scheduler started", zap.String("job", job.Name), zap.Duration("interval", job.Interval))

	s.tick(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Job scheduler stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			s.tick(ctx, job)
		}
	}
}

// tick runs job once if this instance wins the lease. The lease TTL is just under the
// interval so the next tick on any instance can take it.
func (s *Scheduler) tick(ctx context.Context, job Job) {
	ttl := job.Interval - job.Interval/10
	ok, err := s.leaser.Acquire(ctx, job.Name, ttl)
	if err != nil {
		s.logger.Error("Job lease failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	if !ok {
		s.logger.Debug("Job lease held elsewhere", zap.String("job", job.Name))
		return
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Job panicked", zap.String("job", job.Name), zap.Any("panic", r))
		}
	}()
	if err := job.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("Job failed", zap.String("job", job.Name), zap.Error(err))
		return
	}
	s.logger.Debug("Job finished", zap.String("job", job.Name), zap.Duration("elapsed", time.Since(start)))
}
