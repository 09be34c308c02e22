// Package jobs runs the periodic sweepers. A tick that fires while the
// previous run of the same job is still going is skipped, and Stop waits for
// in-flight runs, scheduled or manual.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"matsched/internal/utils"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var (
	ErrRunning    = errors.New("job already running")
	ErrUnknownJob = errors.New("unknown job")
	ErrStopped    = errors.New("scheduler stopped")
)

// Job is one named periodic task. Run returns how many items it processed.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (int, error)
}

type Stats struct {
	Name         string    `json:"name"`
	Spec         string    `json:"spec"`
	Runs         int64     `json:"runs"`
	Skipped      int64     `json:"skipped"`
	LastRun      time.Time `json:"lastRun,omitempty"`
	LastDuration string    `json:"lastDuration,omitempty"`
	LastCount    int       `json:"lastCount"`
	LastError    string    `json:"lastError,omitempty"`
}

type entry struct {
	job     Job
	running sync.Mutex
	stats   Stats
}

type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]*entry
	stopped bool
	manual  sync.WaitGroup
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		ctx:    ctx,
		cancel: cancel,
		jobs:   map[string]*entry{},
	}
}

// Add registers j. Names must be unique.
func (s *Scheduler) Add(j Job) error {
	if j.Name == "" || j.Run == nil {
		return errors.New("job needs a name and a run func")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[j.Name]; dup {
		return fmt.Errorf("job %q already registered", j.Name)
	}
	e := &entry{job: j, stats: Stats{Name: j.Name, Spec: j.Spec}}
	if _, err := s.cron.AddFunc(j.Spec, func() { _, _ = s.run(s.ctx, e) }); err != nil {
		return fmt.Errorf("schedule %s: %w", j.Name, err)
	}
	s.jobs[j.Name] = e
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops new ticks, refuses further RunNow calls and waits for running
// jobs. If ctx ends first the running jobs see their context cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.manual.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// RunNow runs the named job immediately unless it is already running. The
// run is cancelled with ctx or when Stop gives up waiting.
func (s *Scheduler) RunNow(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, ErrStopped
	}
	e, ok := s.jobs[name]
	if ok {
		s.manual.Add(1)
	}
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownJob, name)
	}
	defer s.manual.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unhook := context.AfterFunc(s.ctx, cancel)
	defer unhook()
	return s.run(ctx, e)
}

func (s *Scheduler) run(ctx context.Context, e *entry) (int, error) {
	if !e.running.TryLock() {
		s.mu.Lock()
		e.stats.Skipped++
		s.mu.Unlock()
		utils.LogEvent("", "jobs", "skipped", "job="+e.job.Name)
		return 0, ErrRunning
	}
	defer e.running.Unlock()

	reqID := "job-" + e.job.Name + "-" + uuid.NewString()[:8]
	start := time.Now()
	n, err := e.job.Run(utils.WithRequestID(ctx, reqID))
	took := time.Since(start)

	s.mu.Lock()
	e.stats.Runs++
	e.stats.LastRun = start.UTC()
	e.stats.LastDuration = took.Round(time.Millisecond).String()
	e.stats.LastCount = n
	e.stats.LastError = ""
	if err != nil {
		e.stats.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		utils.LogEvent(reqID, "jobs", "failed", fmt.Sprintf("job=%s err=%v", e.job.Name, err))
	} else if n > 0 {
		utils.LogEvent(reqID, "jobs", "done", fmt.Sprintf("job=%s items=%d took=%s", e.job.Name, n, took.Round(time.Millisecond)))
	}
	return n, err
}

// Stats returns a snapshot of every job, sorted by name.
func (s *Scheduler) Stats() []Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Stats, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
