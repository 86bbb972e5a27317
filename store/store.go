package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"trackpoint/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store owns the events table and the ledger and daily aggregate tables derived
// from it. Writes are serialized through one mutex and applied in one transaction
// per call; reads go straight to the database.
type Store struct {
	db  *gorm.DB
	now func() time.Time

	writeMu sync.Mutex

	subsMu sync.RWMutex
	subs   []func([]models.Event)
}

type Option func(*Store)

// WithClock replaces time.Now as the source of serverTime and of "today".
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New migrates the schema and returns a Store bound to db.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, errors.New("store: nil database")
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle, mainly for closing it.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Subscribe registers fn to be called after every successful commit with the events
// that were newly stored by it. Duplicates are never passed on.
func (s *Store) Subscribe(fn func([]models.Event)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) notify(stored []models.Event) {
	if len(stored) == 0 {
		return
	}
	s.subsMu.RLock()
	subs := s.subs
	s.subsMu.RUnlock()
	for _, fn := range subs {
		fn(stored)
	}
}

// Insert stores one event. Re-submitting an eventId that is already stored is a
// silent no-op.
func (s *Store) Insert(ctx context.Context, event models.Event) error {
	return s.insert(ctx, "insert event", []models.Event{event})
}

// InsertBatch stores events atomically: either every new event of the batch and its
// ledger and aggregate updates are committed together, or nothing is.
func (s *Store) InsertBatch(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	return s.insert(ctx, "insert batch", events)
}

func (s *Store) insert(ctx context.Context, op string, events []models.Event) error {
	stored := make([]models.Event, 0, len(events))

	s.writeMu.Lock()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range events {
			event := events[i]
			ok, err := s.insertTx(tx, &event)
			if err != nil {
				return err
			}
			if ok {
				stored = append(stored, event)
			}
		}
		return nil
	})
	s.writeMu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("op", op).Int("events", len(events)).Msg("Store: rolled back")
		return storageErr(op, err)
	}
	if dup := len(events) - len(stored); dup > 0 {
		log.Debug().Int("duplicates", dup).Msg("Store: duplicate events ignored")
	}
	s.notify(stored)
	return nil
}

// insertTx writes one event and its derived state. It reports false when the event
// was already stored, in which case nothing else is touched.
func (s *Store) insertTx(tx *gorm.DB, event *models.Event) (bool, error) {
	if event.ServerTime == 0 {
		event.ServerTime = s.now().UnixMilli()
	}
	row, err := toEventRow(event)
	if err != nil {
		return false, err
	}

	// looked up before the row exists so the event does not find itself
	newSession, err := isNewSession(tx, row.DeviceID, row.SessionID)
	if err != nil {
		return false, err
	}

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	if err := upsertUser(tx, row, newSession); err != nil {
		return false, err
	}
	if err := updateDailyStats(tx, row); err != nil {
		return false, err
	}
	return true, nil
}
