// Package scheduler runs unattended imports of watched export directories
// on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wesm/wahistory/internal/config"
)

var (
	ErrStopped       = errors.New("scheduler is stopped")
	ErrNotScheduled  = errors.New("directory is not scheduled")
	ErrAlreadyActive = errors.New("import already running")
)

// ImportFunc imports the new exports in dir and returns how many chats
// were added.
type ImportFunc func(ctx context.Context, dir string) (int, error)

// WatchStatus is the state of one watched directory.
type WatchStatus struct {
	Dir          string    `json:"dir"`
	Schedule     string    `json:"schedule"`
	Running      bool      `json:"running"`
	LastRun      time.Time `json:"last_run,omitempty"`
	LastImported int       `json:"last_imported"`
	NextRun      time.Time `json:"next_run"`
	LastError    string    `json:"last_error,omitempty"`
}

type watch struct {
	entry        cron.EntryID
	schedule     string
	running      bool
	lastRun      time.Time
	lastImported int
	lastErr      error
}

// Scheduler owns a cron runner with one job per watched directory. A
// directory never has two imports in flight.
type Scheduler struct {
	cron       *cron.Cron
	importFunc ImportFunc
	logger     *slog.Logger

	mu      sync.RWMutex
	watches map[string]*watch

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// New returns a scheduler that calls fn for each due directory.
func New(fn ImportFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithParser(cronParser)),
		importFunc: fn,
		logger:     slog.Default(),
		watches:    make(map[string]*watch),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddWatch schedules imports of dir, replacing any earlier schedule for it.
func (s *Scheduler) AddWatch(dir, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.cron.AddFunc(cronExpr, func() {
		if s.claim(dir) {
			s.run(dir)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	if w, ok := s.watches[dir]; ok {
		s.cron.Remove(w.entry)
		w.entry = entry
		w.schedule = cronExpr
	} else {
		s.watches[dir] = &watch{entry: entry, schedule: cronExpr}
	}
	s.logger.Info("scheduled import",
		"dir", dir,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entry).Next)
	return nil
}

// AddFromConfig schedules every enabled watch in cfg. It returns how many
// were scheduled and the errors for those that were not.
func (s *Scheduler) AddFromConfig(cfg *config.Config) (int, []error) {
	var errs []error
	n := 0
	for _, w := range cfg.ScheduledWatches() {
		if err := s.AddWatch(w.Dir, w.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.Dir, err))
			continue
		}
		n++
	}
	return n, errs
}

// RemoveWatch drops the schedule for dir. A running import finishes.
func (s *Scheduler) RemoveWatch(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.watches[dir]; ok {
		s.cron.Remove(w.entry)
		delete(s.watches, dir)
		s.logger.Info("removed schedule", "dir", dir)
	}
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	n := len(s.watches)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "watches", n)
}

// IsRunning reports whether the scheduler was started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop halts scheduling, cancels running imports, and returns a context
// that is done once they have returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// Trigger starts an import of dir now, outside its schedule.
func (s *Scheduler) Trigger(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	w, ok := s.watches[dir]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotScheduled, dir)
	}
	if w.running {
		return fmt.Errorf("%w: %s", ErrAlreadyActive, dir)
	}
	w.running = true
	s.wg.Add(1)
	go s.run(dir)
	return nil
}

// TriggerAll starts an import of every watched directory that is idle and
// returns the directories started.
func (s *Scheduler) TriggerAll() []string {
	s.mu.RLock()
	dirs := make([]string, 0, len(s.watches))
	for dir := range s.watches {
		dirs = append(dirs, dir)
	}
	s.mu.RUnlock()
	sort.Strings(dirs)

	var started []string
	for _, dir := range dirs {
		if err := s.Trigger(dir); err == nil {
			started = append(started, dir)
		}
	}
	return started
}

// claim marks dir running for a cron tick. It fails if the scheduler is
// stopped or an import of dir is already in flight.
func (s *Scheduler) claim(dir string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[dir]
	if s.stopped || !ok || w.running {
		return false
	}
	w.running = true
	s.wg.Add(1)
	return true
}

// run imports dir. The caller has claimed it.
func (s *Scheduler) run(dir string) {
	defer s.wg.Done()

	s.logger.Info("starting scheduled import", "dir", dir)
	start := time.Now()
	n, err := s.importFunc(s.ctx, dir)

	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.watches[dir]
	if !ok {
		// Removed while running.
		return
	}
	w.running = false
	if err != nil {
		w.lastErr = err
		s.logger.Error("scheduled import failed",
			"dir", dir,
			"duration", time.Since(start),
			"error", err)
		return
	}
	w.lastRun = time.Now()
	w.lastImported = n
	w.lastErr = nil
	s.logger.Info("scheduled import completed",
		"dir", dir,
		"imported", n,
		"duration", time.Since(start))
}

// IsScheduled reports whether dir has a schedule.
func (s *Scheduler) IsScheduled(dir string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.watches[dir]
	return ok
}

// Status returns the state of every watch, sorted by directory.
func (s *Scheduler) Status() []WatchStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]WatchStatus, 0, len(s.watches))
	for dir, w := range s.watches {
		st := WatchStatus{
			Dir:          dir,
			Schedule:     w.schedule,
			Running:      w.running,
			LastRun:      w.lastRun,
			LastImported: w.lastImported,
			NextRun:      s.cron.Entry(w.entry).Next,
		}
		if w.lastErr != nil {
			st.LastError = w.lastErr.Error()
		}
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Dir < statuses[j].Dir })
	return statuses
}

// ValidateCronExpr checks a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
