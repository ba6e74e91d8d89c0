// internal/timer/wake.go
// Package timer provides named, one-shot wake-ups. Arming a name that is already
// armed replaces the earlier registration, so re-arming is idempotent.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const firedBuffer = 64

// Wake fires registered names at (or shortly after) their time.
type Wake struct {
	cron  *cron.Cron
	log   *zap.Logger
	fired chan string
	done  chan struct{}

	mu      sync.Mutex
	entries map[string]entry
	stopped bool
}

type entry struct {
	id cron.EntryID
	at time.Time
}

// New builds a Wake. Call Start to begin firing.
func New(logger *zap.Logger) *Wake {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("timer")
	cl := cronLogger{logger.Sugar()}
	return &Wake{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		log:     logger,
		fired:   make(chan string, firedBuffer),
		done:    make(chan struct{}),
		entries: make(map[string]entry),
	}
}

// Arm registers name to fire at at, replacing any earlier registration of name.
// A time in the past fires as soon as the Wake is running.
func (w *Wake) Arm(name string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		w.log.Warn("Arm after Stop ignored.", zap.String("name", name))
		return
	}
	if old, ok := w.entries[name]; ok {
		w.cron.Remove(old.id)
	}
	j := &job{wake: w, name: name}
	j.id = w.cron.Schedule(&once{at: at}, j)
	w.entries[name] = entry{id: j.id, at: at}
	w.log.Debug("Wake armed.", zap.String("name", name), zap.Time("at", at))
}

// Disarm cancels a pending registration. It reports whether name was armed.
func (w *Wake) Disarm(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[name]
	if !ok {
		return false
	}
	delete(w.entries, name)
	w.cron.Remove(e.id)
	return true
}

// Armed returns a snapshot of the registrations that have not fired yet.
func (w *Wake) Armed() map[string]time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]time.Time, len(w.entries))
	for name, e := range w.entries {
		out[name] = e.at
	}
	return out
}

// Fired delivers the name of each registration as it fires.
func (w *Wake) Fired() <-chan string {
	return w.fired
}

// Start begins firing in a background goroutine.
func (w *Wake) Start() {
	w.cron.Start()
}

// Stop halts the Wake. The returned context is done once in-progress firings
// have been handed off or abandoned. Registrations that have not fired are dropped.
func (w *Wake) Stop() context.Context {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.done)
	}
	w.mu.Unlock()
	return w.cron.Stop()
}

// fire runs on a cron job goroutine.
func (w *Wake) fire(j *job) {
	w.mu.Lock()
	e, ok := w.entries[j.name]
	current := ok && e.id == j.id
	if current {
		delete(w.entries, j.name)
	}
	w.mu.Unlock()
	w.cron.Remove(j.id)
	if !current {
		// Replaced or disarmed while the job was being started.
		return
	}

	w.log.Debug("Wake fired.", zap.String("name", j.name))
	select {
	case w.fired <- j.name:
	case <-w.done:
		w.log.Warn("Wake stopped before delivery.", zap.String("name", j.name))
	}
}

type job struct {
	wake *Wake
	name string
	id   cron.EntryID
}

func (j *job) Run() {
	j.wake.fire(j)
}

// once is a cron.Schedule that yields a single activation. The first call to Next
// pins the activation to max(at, t); once a later call observes a time at or after
// that activation, the schedule reports no further runs.
type once struct {
	mu   sync.Mutex
	at   time.Time
	next time.Time
}

func (o *once) Next(t time.Time) time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.next.IsZero() {
		o.next = o.at
		if o.next.Before(t) {
			o.next = t
		}
		return o.next
	}
	if t.Before(o.next) {
		return o.next
	}
	return time.Time{}
}

// cronLogger routes cron's internal logging into zap. Scheduling chatter goes to debug.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
