// internal/store/store.go
// Package store keeps the collection of scheduled actions. The whole collection lives
// under one key of the durable store as a JSON array; every mutation is a
// read-modify-write of that array.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/sendlater/api/schemas"
	"github.com/xkilldash9x/sendlater/internal/kv"
	"go.uber.org/zap"
)

// CollectionKey is the durable store key holding the record array.
const CollectionKey = "scheduledMessages"

// ErrStorage marks any failure of the underlying durable store or of the
// collection encoding. Callers test for it with errors.Is.
var ErrStorage = errors.New("storage unavailable")

// Store provides CRUD over scheduled actions.
type Store struct {
	backend kv.Store
	key     string
	log     *zap.Logger
	now     func() time.Time
	newID   func() string

	// mu serializes read-modify-write cycles issued by this process.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides CollectionKey.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithClock sets the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator sets the id source. Ids must be unique for the lifetime of the collection.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// New creates a Store over backend.
func New(backend kv.Store, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend: backend,
		key:     CollectionKey,
		log:     logger.Named("store"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create appends a new Pending record and returns it.
func (s *Store) Create(ctx context.Context, recipient, payload string, at time.Time) (schemas.ScheduledAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return schemas.ScheduledAction{}, err
	}
	id := s.uniqueID(records)
	rec := schemas.ScheduledAction{
		ID:            id,
		Recipient:     recipient,
		Payload:       payload,
		ScheduledTime: at.UnixMilli(),
		Status:        schemas.StatusPending,
		CreatedAt:     s.now().UnixMilli(),
	}
	if err := s.save(ctx, append(records, rec)); err != nil {
		return schemas.ScheduledAction{}, err
	}
	s.log.Debug("Scheduled action created.", zap.String("id", id), zap.Time("at", rec.At()))
	return rec, nil
}

// uniqueID draws ids until one is not already present.
func (s *Store) uniqueID(records []schemas.ScheduledAction) string {
	for {
		id := s.newID()
		if id != "" && indexOf(records, id) < 0 {
			return id
		}
	}
}

// List returns every record in stored order.
func (s *Store) List(ctx context.Context) ([]schemas.ScheduledAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Get returns the record with id. ok is false if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (rec schemas.ScheduledAction, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return schemas.ScheduledAction{}, false, err
	}
	if i := indexOf(records, id); i >= 0 {
		return records[i], true, nil
	}
	return schemas.ScheduledAction{}, false, nil
}

// Update replaces the record carrying rec.ID. It is a no-op when no such record exists.
func (s *Store) Update(ctx context.Context, rec schemas.ScheduledAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(records, rec.ID)
	if i < 0 {
		s.log.Debug("Update skipped, record no longer exists.", zap.String("id", rec.ID))
		return nil
	}
	records[i] = rec
	return s.save(ctx, records)
}

// Remove deletes the record with id. It is a no-op when no such record exists.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(records, id)
	if i < 0 {
		return nil
	}
	return s.save(ctx, append(records[:i], records[i+1:]...))
}

func (s *Store) load(ctx context.Context) ([]schemas.ScheduledAction, error) {
	raw, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if !ok || len(raw) == 0 {
		return []schemas.ScheduledAction{}, nil
	}
	var records []schemas.ScheduledAction
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrStorage, s.key, err)
	}
	if records == nil {
		records = []schemas.ScheduledAction{}
	}
	return records, nil
}

func (s *Store) save(ctx context.Context, records []schemas.ScheduledAction) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrStorage, s.key, err)
	}
	if err := s.backend.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

func indexOf(records []schemas.ScheduledAction, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}
