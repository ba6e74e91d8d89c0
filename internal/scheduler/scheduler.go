// internal/scheduler/scheduler.go
// Package scheduler owns the lifecycle of scheduled actions: registration, wake-up
// arming, recovery after a restart, dispatch to an execution context and recording
// of the outcome. The persisted collection is the single source of truth for what
// must still happen; timers are rebuilt from it on startup.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sendlater/api/schemas"
	"github.com/xkilldash9x/sendlater/internal/channel"
	"github.com/xkilldash9x/sendlater/internal/store"
)

const (
	// DefaultDeferral is the settle delay after opening an execution context.
	DefaultDeferral = 10 * time.Second
	// DefaultDispatchTimeout bounds one request to the execution context.
	DefaultDispatchTimeout = 2 * time.Minute
)

// ReasonChannelUnavailable prefixes the failure reason of a dispatch whose request
// never got an answer from an execution context.
const ReasonChannelUnavailable = "channel-unavailable"

var (
	// ErrInvalidRequest is returned by Register for an empty recipient or payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("scheduled action not found")
	// ErrNotPending is returned when a dispatch is requested for a concluded record.
	ErrNotPending = errors.New("scheduled action is not pending")
)

// Records is the persistence the scheduler needs.
type Records interface {
	Create(ctx context.Context, recipient, payload string, at time.Time) (schemas.ScheduledAction, error)
	List(ctx context.Context) ([]schemas.ScheduledAction, error)
	Get(ctx context.Context, id string) (schemas.ScheduledAction, bool, error)
	Update(ctx context.Context, rec schemas.ScheduledAction) error
	Remove(ctx context.Context, id string) error
}

// Alarm arms named wake-ups and reports them as they fire.
type Alarm interface {
	Arm(name string, at time.Time)
	Fired() <-chan string
}

// Recovery summarizes what Recover did.
type Recovery struct {
	// Dispatched holds ids whose wake-up was missed and that were dispatched immediately.
	Dispatched []string
	// Rearmed holds ids whose wake-up is still in the future.
	Rearmed []string
}

// Scheduler coordinates stored records, wake-ups and the execution context.
type Scheduler struct {
	records  Records
	alarm    Alarm
	endpoint channel.Endpoint
	logger   *zap.Logger

	deferral        time.Duration
	dispatchTimeout time.Duration
	now             func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	runCtx   context.Context
	wg       sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDeferral sets the single settle delay applied after opening an execution context.
func WithDeferral(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.deferral = d
		}
	}
}

// WithDispatchTimeout bounds each request to the execution context.
func WithDispatchTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.dispatchTimeout = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler.
func New(records Records, alarm Alarm, endpoint channel.Endpoint, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		records:         records,
		alarm:           alarm,
		endpoint:        endpoint,
		logger:          logger.Named("scheduler"),
		deferral:        DefaultDeferral,
		dispatchTimeout: DefaultDispatchTimeout,
		now:             time.Now,
		inFlight:        make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register persists a new pending action and arms its wake-up.
func (s *Scheduler) Register(ctx context.Context, recipient, payload string, at time.Time) (schemas.ScheduledAction, error) {
	if strings.TrimSpace(recipient) == "" {
		return schemas.ScheduledAction{}, fmt.Errorf("%w: recipient is required", ErrInvalidRequest)
	}
	if payload == "" {
		return schemas.ScheduledAction{}, fmt.Errorf("%w: payload is required", ErrInvalidRequest)
	}
	rec, err := s.records.Create(ctx, recipient, payload, at)
	if err != nil {
		return schemas.ScheduledAction{}, err
	}
	s.alarm.Arm(schemas.WakeName(rec.ID), rec.At())
	s.logger.Info("Registered scheduled action.",
		zap.String("id", rec.ID),
		zap.Time("scheduled_time", rec.At()))
	return rec, nil
}

// Run consumes wake-ups until ctx is done or the alarm stops delivering. Every
// wake-up is dispatched on its own goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	fired := s.alarm.Fired()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case name, ok := <-fired:
			if !ok {
				return nil
			}
			id, ok := schemas.IDFromWakeName(name)
			if !ok {
				s.logger.Warn("Ignoring unknown wake-up.", zap.String("name", name))
				continue
			}
			s.spawn(ctx, id)
		}
	}
}

func (s *Scheduler) spawn(ctx context.Context, id string) {
	s.spawnWith(ctx, id, func() {})
}

// spawnWith dispatches id in the background and calls done when it returns.
func (s *Scheduler) spawnWith(ctx context.Context, id string, done func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer done()
		if err := s.Dispatch(ctx, id); err != nil {
			s.logger.Error("Dispatch could not be recorded.", zap.String("id", id), zap.Error(err))
		}
	}()
}

// detach keeps the values of ctx but not its cancellation. The result ends with
// the context Run was started with, if Run has been called.
func (s *Scheduler) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	base := s.runCtx
	s.mu.Unlock()
	if base == nil {
		return dctx, cancel
	}
	stop := context.AfterFunc(base, cancel)
	return dctx, func() {
		stop()
		cancel()
	}
}

// Wait blocks until every dispatch started by Run, Recover or Trigger has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Dispatch performs one attempt for the record with the given id. An absent or
// concluded record is a no-op, as is a wake-up for an id already being dispatched.
// The outcome is persisted. The returned error only reports storage failures.
func (s *Scheduler) Dispatch(ctx context.Context, id string) error {
	if !s.claim(id) {
		s.logger.Debug("Dispatch already in flight.", zap.String("id", id))
		return nil
	}
	defer s.release(id)

	rec, ok, err := s.records.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("Woke for a removed action.", zap.String("id", id))
		return nil
	}
	if rec.Status != schemas.StatusPending {
		s.logger.Debug("Woke for a concluded action.", zap.String("id", id), zap.String("status", string(rec.Status)))
		return nil
	}

	logger := s.logger.With(zap.String("id", id))
	logger.Info("Dispatching scheduled action.")

	resp, reqErr := s.attempt(ctx, logger, rec)
	if reqErr != nil && ctx.Err() != nil {
		// The attempt was interrupted, not concluded. Recovery picks it up again.
		logger.Warn("Dispatch interrupted, left pending.", zap.Error(ctx.Err()))
		return nil
	}

	switch {
	case reqErr != nil:
		rec.Status = schemas.StatusFailed
		rec.Reason = fmt.Sprintf("%s: %v", ReasonChannelUnavailable, reqErr)
	case resp.OK:
		rec.Status = schemas.StatusSent
		rec.Reason = ""
	default:
		rec.Status = schemas.StatusFailed
		rec.Reason = resp.Reason
	}
	rec.AttemptedAt = s.now().UnixMilli()

	if rec.Status == schemas.StatusSent {
		logger.Info("Scheduled action sent.")
	} else {
		logger.Warn("Scheduled action failed.", zap.String("reason", rec.Reason))
	}
	// The outcome is recorded even if the caller gave up meanwhile.
	return s.records.Update(context.WithoutCancel(ctx), rec)
}

// attempt opens the execution context if needed and sends the dispatch request.
func (s *Scheduler) attempt(ctx context.Context, logger *zap.Logger, rec schemas.ScheduledAction) (resp schemas.DispatchResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic during dispatch.", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("panic during dispatch: %v", r)
		}
	}()

	if !s.endpoint.Available(ctx) {
		logger.Info("No execution context available, opening one.", zap.Duration("deferral", s.deferral))
		if err := s.endpoint.Open(ctx); err != nil {
			logger.Warn("Failed to open an execution context.", zap.Error(err))
		}
		if err := sleep(ctx, s.deferral); err != nil {
			return schemas.DispatchResponse{}, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()
	return s.endpoint.Request(reqCtx, schemas.NewDispatch(rec))
}

func (s *Scheduler) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// Recover rebuilds wake-ups from the stored records: pending actions that are
// already due are dispatched immediately, the others are re-armed.
func (s *Scheduler) Recover(ctx context.Context) (Recovery, error) {
	records, err := s.records.List(ctx)
	if err != nil {
		return Recovery{}, err
	}
	now := s.now()
	var rec Recovery
	for _, r := range records {
		if r.Status != schemas.StatusPending {
			continue
		}
		if r.Due(now) {
			rec.Dispatched = append(rec.Dispatched, r.ID)
			s.spawn(ctx, r.ID)
			continue
		}
		s.alarm.Arm(schemas.WakeName(r.ID), r.At())
		rec.Rearmed = append(rec.Rearmed, r.ID)
	}
	s.logger.Info("Recovered scheduled actions.",
		zap.Int("dispatched", len(rec.Dispatched)),
		zap.Int("rearmed", len(rec.Rearmed)))
	return rec, nil
}

// Trigger dispatches a pending record now, in the background. The dispatch outlives
// ctx but stops with Run, like dispatches started by wake-ups.
func (s *Scheduler) Trigger(ctx context.Context, id string) error {
	rec, ok, err := s.records.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if rec.Status != schemas.StatusPending {
		return fmt.Errorf("%w: %s", ErrNotPending, rec.Status)
	}
	dctx, cancel := s.detach(ctx)
	s.spawnWith(dctx, id, cancel)
	return nil
}

// Cancel removes a record. An armed wake-up stays armed and finds nothing to do.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	_, ok, err := s.records.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if err := s.records.Remove(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Cancelled scheduled action.", zap.String("id", id))
	return nil
}

// List returns every record ordered by scheduled time.
func (s *Scheduler) List(ctx context.Context) ([]schemas.ScheduledAction, error) {
	records, err := s.records.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ScheduledTime < records[j].ScheduledTime
	})
	return records, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Records = (*store.Store)(nil)
