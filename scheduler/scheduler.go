package scheduler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks.
type TaskFn func()

// Scheduler owns a set of named tickers and one-shot delays. Every task it
// starts is tracked by name so Stop can cancel all of them at once; battle
// sessions keep one Scheduler each for their countdowns.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	timers  map[string]*timerEntry
	seq     uint64
	stopped bool
	logger  *zap.Logger
}

type tickerEntry struct {
	ticker *time.Ticker
	stopCh chan struct{}
}

type timerEntry struct {
	timer *time.Timer
	id    uint64
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		timers:  make(map[string]*timerEntry),
		logger:  logger,
	}
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if old, ok := s.tickers[name]; ok {
		close(old.stopCh)
		delete(s.tickers, name)
	}

	entry := &tickerEntry{
		ticker: time.NewTicker(interval),
		stopCh: make(chan struct{}),
	}
	s.tickers[name] = entry

	go func() {
		defer entry.ticker.Stop()
		for {
			select {
			case <-entry.ticker.C:
				s.run(name, fn)
			case <-entry.stopCh:
				return
			}
		}
	}()
	s.logger.Debug("scheduler ticker registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after the given delay. A pending delay with the same
// name is cancelled first. It returns false if the scheduler is stopped.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}

	if old, ok := s.timers[name]; ok {
		old.timer.Stop()
	}
	s.seq++
	id := s.seq
	s.timers[name] = &timerEntry{
		id: id,
		timer: time.AfterFunc(delay, func() {
			s.mu.Lock()
			cur, ok := s.timers[name]
			if !ok || cur.id != id {
				// Replaced or removed after the timer already fired.
				s.mu.Unlock()
				return
			}
			delete(s.timers, name)
			s.mu.Unlock()
			s.run(name, fn)
		}),
	}
	return true
}

func (s *Scheduler) run(name string, fn TaskFn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", name),
				zap.Any("recover", r))
		}
	}()
	fn()
}

// Remove stops and removes a ticker or delay task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.tickers[name]; ok {
		close(entry.stopCh)
		delete(s.tickers, name)
	}
	if t, ok := s.timers[name]; ok {
		t.timer.Stop()
		delete(s.timers, name)
	}
}

// Has reports whether a ticker or pending delay is registered under name.
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, t := s.tickers[name]
	_, d := s.timers[name]
	return t || d
}

// Stop cancels every ticker and pending delay. A delay callback that already
// started keeps running, but none starts after Stop returns. Later Add calls
// are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for name, entry := range s.tickers {
		close(entry.stopCh)
		delete(s.tickers, name)
	}
	for name, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, name)
	}
}

// Pending returns the sorted names of all registered tasks.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers)+len(s.timers))
	for name := range s.tickers {
		names = append(names, name)
	}
	for name := range s.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
