package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/vnykmshr/ruginx/pkg/common/validation"
	"github.com/vnykmshr/ruginx/pkg/metrics"
	"github.com/vnykmshr/ruginx/pkg/threadpool"
)

const maxIDLength = 255

// Config holds scheduler configuration.
type Config struct {
	// Location is the time zone cron expressions are evaluated in.
	// Defaults to time.Local.
	Location *time.Location

	// Logger receives dispatch failures. Nil disables logging.
	Logger *zap.Logger

	// Metrics counts dispatched and refused runs. Nil disables metrics.
	Metrics *metrics.Registry
}

// Options tune a single cron entry.
type Options struct {
	// MaxRuns removes the entry after it has been dispatched this many
	// times. Zero means unlimited.
	MaxRuns int

	// SkipIfStillRunning drops a firing while the previous run of the same
	// entry is still queued or executing in the pool.
	SkipIfStillRunning bool
}

// Entry describes a scheduled cron job.
type Entry struct {
	ID         string
	Expression string
	Next       time.Time
	Prev       time.Time
	Runs       int64
	Skipped    int64
}

type entry struct {
	id      string
	expr    string
	job     threadpool.Job
	options Options
	cronID  cron.EntryID

	inFlight atomic.Bool
	runs     atomic.Int64
	skipped  atomic.Int64
}

// Scheduler fires jobs on cron schedules by submitting them to a pool.
// The scheduler never runs a job itself; the pool's workers do.
type Scheduler struct {
	pool    threadpool.Submitter
	cron    *cron.Cron
	parser  cron.Parser
	logger  *zap.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	entries map[string]*entry
	running bool
}

// New creates a scheduler that submits to pool.
func New(pool threadpool.Submitter, cfg Config) (*Scheduler, error) {
	if pool == nil {
		return nil, validation.ValidateNotNil("scheduler", "pool", nil)
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")

	// Seconds are optional so both "*/5 * * * *" and "*/5 * * * * *" parse.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	return &Scheduler{
		pool: pool,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(location),
			cron.WithLogger(cronLogger{logger}),
		),
		parser:  parser,
		logger:  logger,
		metrics: cfg.Metrics,
		entries: make(map[string]*entry),
	}, nil
}

// ValidateCronExpression validates a cron expression without scheduling it.
func (s *Scheduler) ValidateCronExpression(expr string) error {
	if err := validation.ValidateNotEmpty("scheduler", "cron", expr); err != nil {
		return err
	}
	if _, err := s.parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// ScheduleCron schedules job using a cron expression.
// Examples:
//
//	"*/10 * * * * *"  - every 10 seconds
//	"0 */2 * * *"     - every 2 hours
//	"@every 30s"      - every 30 seconds
//	"@hourly"         - every hour
func (s *Scheduler) ScheduleCron(id, expr string, job threadpool.Job) error {
	return s.ScheduleCronWithOptions(id, expr, job, Options{})
}

// ScheduleCronWithOptions schedules job with per-entry options.
func (s *Scheduler) ScheduleCronWithOptions(id, expr string, job threadpool.Job, options Options) error {
	if err := validation.ValidateNotEmpty("scheduler", "id", id); err != nil {
		return err
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("task ID too long (max %d characters)", maxIDLength)
	}
	if job == nil {
		return validation.ValidateNotNil("scheduler", "job", nil)
	}
	if err := validation.ValidateNonNegative("scheduler", "max_runs", options.MaxRuns); err != nil {
		return err
	}
	if err := s.ValidateCronExpression(expr); err != nil {
		return err
	}
	schedule, _ := s.parser.Parse(expr)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return fmt.Errorf("task with ID %q already exists, use a different ID or cancel the existing task first", id)
	}

	e := &entry{id: id, expr: expr, job: job, options: options}
	e.cronID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.dispatch(e) }))
	s.entries[id] = e
	return nil
}

// dispatch hands one firing of e to the pool.
func (s *Scheduler) dispatch(e *entry) {
	if e.options.SkipIfStillRunning && !e.inFlight.CompareAndSwap(false, true) {
		e.skipped.Add(1)
		s.logger.Debug("previous run still in flight; skipping", zap.String("task_id", e.id))
		return
	}

	job := e.job
	if e.options.SkipIfStillRunning {
		job = threadpool.JobFunc(func() {
			defer e.inFlight.Store(false)
			e.job.Run()
		})
	}

	if err := s.pool.Submit(job); err != nil {
		e.inFlight.Store(false)
		s.logger.Error("cannot submit scheduled job", zap.String("task_id", e.id), zap.Error(err))
		if s.metrics != nil {
			s.metrics.ScheduledFailures.WithLabelValues(e.id).Inc()
		}
		return
	}

	if s.metrics != nil {
		s.metrics.ScheduledRuns.WithLabelValues(e.id).Inc()
	}
	if n := e.runs.Add(1); e.options.MaxRuns > 0 && n >= int64(e.options.MaxRuns) {
		s.Cancel(e.id)
	}
}

// Cancel removes the entry with the given ID. It reports whether the entry
// existed. A run already submitted to the pool is not affected.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[id]
	if !exists {
		return false
	}
	s.cron.Remove(e.cronID)
	delete(s.entries, id)
	return true
}

// CancelAll removes every entry.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		s.cron.Remove(e.cronID)
		delete(s.entries, id)
	}
}

// Next returns the next firing time of an entry. It is the zero time until
// the scheduler has been started.
func (s *Scheduler) Next(id string) (time.Time, error) {
	s.mu.Lock()
	e, exists := s.entries[id]
	s.mu.Unlock()

	if !exists {
		return time.Time{}, fmt.Errorf("cron task with ID %s not found", id)
	}
	return s.cron.Entry(e.cronID).Next, nil
}

// List returns all entries sorted by ID.
func (s *Scheduler) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		ce := s.cron.Entry(e.cronID)
		entries = append(entries, Entry{
			ID:         e.id,
			Expression: e.expr,
			Next:       ce.Next,
			Prev:       ce.Prev,
			Runs:       e.runs.Load(),
			Skipped:    e.skipped.Load(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// Start begins firing entries.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running, call Stop() first")
	}
	s.running = true
	s.cron.Start()
	return nil
}

// Stop stops firing entries and waits for in-progress dispatches. It does
// not shut down the pool, which belongs to the caller.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// cronLogger adapts zap to cron's logger interface.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
