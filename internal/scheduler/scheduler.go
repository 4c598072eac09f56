// Package scheduler implements the wall-clock job scheduler (spec §4.I):
// cron-like triggers, at-most-one-per-job execution, manual trigger with
// an idempotent-job bypass rule, startup modes, and a 7-day execution log.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/aristath/marketwatch/internal/config"
	"github.com/aristath/marketwatch/internal/store"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
)

// Result is what a Job reports back to the scheduler on success.
type Result struct {
	RowsTouched int
	Extra       map[string]any
}

// Job is one scheduled unit of work. Idempotent jobs may be re-triggered
// manually while already running (spec §4.I); all others are rejected.
type Job interface {
	Name() string
	Idempotent() bool
	Run(ctx context.Context) (Result, error)
}

// Status is a job's logged outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"
)

// ExecutionLogEntry is persisted to Redis under job:log:<job>:<run_id> with
// a 7-day TTL (spec §4.A/§4.I).
type ExecutionLogEntry struct {
	Job           string    `json:"job"`
	RunID         string    `json:"run_id"`
	Status        Status    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	ElapsedMs     int64     `json:"elapsed_ms"`
	RowsTouched   int       `json:"rows_touched"`
	ProcessRSSPct float64   `json:"process_rss_pct,omitempty"` // system-wide used-memory percent (gopsutil mem.VirtualMemory), not this process's RSS
	Manual        bool      `json:"manual,omitempty"`
}

type registration struct {
	job     Job
	cronIDs []cron.EntryID
	running int32 // atomic: 0/1
	lastLog ExecutionLogEntry
	mu      sync.Mutex
}

// Scheduler owns the cron engine, job registry and execution log.
type Scheduler struct {
	cron  *cron.Cron
	redis *store.Client
	log   zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]*registration

	mode config.StartupMode
}

// New builds a Scheduler. Jobs must be registered with RegisterJob before
// Start.
func New(redisClient *store.Client, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		redis: redisClient,
		log:   log.With().Str("component", "scheduler").Logger(),
		jobs:  make(map[string]*registration),
	}
}

// RegisterJob wires job to one or more cron trigger expressions. Each
// expression fires the same singleton-guarded execution.
func (s *Scheduler) RegisterJob(job Job, cronSpecs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg := &registration{job: job}
	for _, spec := range cronSpecs {
		id, err := s.cron.AddFunc(spec, func() { s.run(context.Background(), reg, false) })
		if err != nil {
			return apperr.Wrap(apperr.BadInput, "scheduler.RegisterJob", err)
		}
		reg.cronIDs = append(reg.cronIDs, id)
	}
	s.jobs[job.Name()] = reg
	return nil
}

// Mode returns the startup mode the scheduler was started with.
func (s *Scheduler) Mode() config.StartupMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// jobsForMode returns the job names the given startup mode is allowed to
// run immediately (spec §4.I).
func jobsForMode(mode config.StartupMode) []string {
	switch mode {
	case config.StartupSkip:
		return nil
	case config.StartupTasks:
		return []string{"compute_signals", "news_crawl", "realtime_snapshot"}
	case config.StartupFullInit:
		return []string{"refresh_symbol_list", "full_bar_refresh", "compute_signals"}
	case config.StartupETFOnly:
		return []string{"refresh_symbol_list", "compute_signals"}
	default:
		return nil
	}
}

// Start runs the startup-mode-eligible jobs once, then starts the cron
// engine for subsequent ticks.
func (s *Scheduler) Start(ctx context.Context, mode config.StartupMode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	for _, name := range jobsForMode(mode) {
		s.mu.RLock()
		reg, ok := s.jobs[name]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		go s.run(ctx, reg, false)
	}

	s.cron.Start()
	s.log.Info().Str("mode", string(mode)).Msg("scheduler started")
}

// Stop drains the cron engine, waiting for in-flight runs to finish.
func (s *Scheduler) Stop() {
	c := s.cron.Stop()
	<-c.Done()
	s.log.Info().Msg("scheduler stopped")
}

// TriggerManual runs name out of band. Non-idempotent jobs are rejected
// while already running (spec §4.I); idempotent jobs bypass that check.
func (s *Scheduler) TriggerManual(ctx context.Context, name string) error {
	s.mu.RLock()
	reg, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.NotFound, "scheduler.TriggerManual", "unknown job: "+name)
	}

	if !reg.job.Idempotent() && atomic.LoadInt32(&reg.running) == 1 {
		return apperr.New(apperr.ConflictSingleton, "scheduler.TriggerManual",
			"job already running and is not idempotent: "+name)
	}

	s.run(ctx, reg, true)
	return nil
}

// Status reports the last execution log entry per job, for the admin
// surface.
func (s *Scheduler) Status() map[string]ExecutionLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ExecutionLogEntry, len(s.jobs))
	for name, reg := range s.jobs {
		reg.mu.Lock()
		out[name] = reg.lastLog
		reg.mu.Unlock()
	}
	return out
}

// run executes one job instance under the singleton guard, recovering from
// panics so a single broken job never takes down the process (spec §4.I:
// "each job runs in its own execution context").
func (s *Scheduler) run(ctx context.Context, reg *registration, manual bool) {
	idempotent := reg.job.Idempotent()
	if !manual || !idempotent {
		// Scheduled runs, and manual runs of non-idempotent jobs, honour
		// the singleton guard. Manual runs of idempotent jobs bypass it
		// entirely (spec §4.I) and never touch the flag.
		if !atomic.CompareAndSwapInt32(&reg.running, 0, 1) {
			s.logSkip(reg, "already_running")
			return
		}
		defer atomic.StoreInt32(&reg.running, 0)
	}

	runID := uuid.NewString()
	start := time.Now()
	entry := ExecutionLogEntry{Job: reg.job.Name(), RunID: runID, StartedAt: start, Manual: manual}

	defer func() {
		if r := recover(); r != nil {
			entry.Status = StatusFail
			entry.Reason = fmt.Sprintf("panic: %v", r)
			entry.ElapsedMs = time.Since(start).Milliseconds()
			s.persist(ctx, reg, entry)
			s.log.Error().Str("job", reg.job.Name()).Interface("panic", r).Msg("job panicked")
		}
	}()

	result, err := reg.job.Run(ctx)
	entry.ElapsedMs = time.Since(start).Milliseconds()
	entry.RowsTouched = result.RowsTouched
	if vm, vErr := mem.VirtualMemory(); vErr == nil {
		entry.ProcessRSSPct = vm.UsedPercent
	}

	switch {
	case err == nil:
		entry.Status = StatusSuccess
	case apperr.KindOf(err) == apperr.NotReady:
		// Registry completeness gate (spec §4.F/§4.I): not ready is a
		// skip, not a failure.
		entry.Status = StatusSkipped
		entry.Reason = err.Error()
		s.log.Warn().Str("job", reg.job.Name()).Str("reason", entry.Reason).Msg("job skipped: not ready")
	default:
		entry.Status = StatusFail
		entry.Reason = err.Error()
		s.log.Error().Err(err).Str("job", reg.job.Name()).Msg("job failed")
	}
	s.persist(ctx, reg, entry)
}

func (s *Scheduler) logSkip(reg *registration, reason string) {
	entry := ExecutionLogEntry{
		Job: reg.job.Name(), RunID: uuid.NewString(), Status: StatusSkipped,
		Reason: reason, StartedAt: time.Now(),
	}
	s.persist(context.Background(), reg, entry)
	s.log.Warn().Str("job", reg.job.Name()).Str("reason", reason).Msg("job run skipped")
}

func (s *Scheduler) persist(ctx context.Context, reg *registration, entry ExecutionLogEntry) {
	reg.mu.Lock()
	reg.lastLog = entry
	reg.mu.Unlock()

	if s.redis == nil {
		return
	}
	key := store.ExecutionLogKey(entry.Job, entry.RunID)
	if err := s.redis.SetEx(ctx, key, entry, store.TTLExecutionLog); err != nil {
		s.log.Error().Err(err).Msg("failed to persist execution log entry")
	}
}
