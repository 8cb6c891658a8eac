package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	cronv3 "github.com/robfig/cron/v3"
)

var logger = log.New("sweep")

func SetLogLevel(l log.Lvl) { logger.SetLevel(l) }

// Job is one pass over the divergence ledger; it reports how many records
// are still outstanding.
type Job func(ctx context.Context) (int, error)

type Scheduler struct {
	cron    *cronv3.Cron
	sched   cronv3.Schedule
	job     Job
	timeout time.Duration

	mu      sync.Mutex
	running bool
}

var parser = cronv3.NewParser(cronv3.SecondOptional | cronv3.Minute | cronv3.Hour | cronv3.Dom | cronv3.Month | cronv3.Dow | cronv3.Descriptor)

// New parses spec ("@every 10m", "0 */15 * * * *", ...) in loc. Each run gets
// its own context bounded by timeout.
func New(spec string, loc *time.Location, timeout time.Duration, job Job) (*Scheduler, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return nil, errors.New("sweep: schedule is required")
	}
	sched, err := parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("sweep: invalid schedule %q: %w", raw, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:    cronv3.New(cronv3.WithLocation(loc), cronv3.WithParser(parser)),
		sched:   sched,
		job:     job,
		timeout: timeout,
	}
	s.cron.Schedule(sched, cronv3.FuncJob(func() { s.RunNow(context.Background()) }))
	return s, nil
}

// Next is the first run strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time { return s.sched.Next(t) }

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule and waits for a running pass, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunNow runs one pass unless another is still in flight. It reports whether
// the pass ran.
func (s *Scheduler) RunNow(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Debugf("[sweep] previous pass still running; skipping")
		return false
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	left, err := s.job(ctx)
	if err != nil {
		logger.Warnf("[sweep] %v", err)
		return true
	}
	logger.Debugf("[sweep] %d ledger records outstanding", left)
	return true
}
