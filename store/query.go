package store

import (
	"context"
	"math"

	"trackpoint/models"

	"gorm.io/gorm"
)

const defaultRecentLimit = 20

// EventFilter selects stored events. Empty fields do not constrain the result.
// StartDate and EndDate are inclusive UTC days (YYYY-MM-DD).
type EventFilter struct {
	StartDate string
	EndDate   string
	EventName string
	EventType models.EventType
	AppID     string
	Limit     int
	Offset    int
}

func (s *Store) filtered(ctx context.Context, filter EventFilter) (*gorm.DB, error) {
	q := s.db.WithContext(ctx).Model(&eventRow{})
	if filter.StartDate != "" {
		first, err := parseDay(filter.StartDate)
		if err != nil {
			return nil, err
		}
		q = q.Where("timestamp >= ?", first.UnixMilli())
	}
	if filter.EndDate != "" {
		last, err := parseDay(filter.EndDate)
		if err != nil {
			return nil, err
		}
		q = q.Where("timestamp < ?", last.Add(oneDay).UnixMilli())
	}
	if filter.EventName != "" {
		q = q.Where("event_name = ?", filter.EventName)
	}
	if filter.EventType != "" {
		q = q.Where("event_type = ?", string(filter.EventType))
	}
	if filter.AppID != "" {
		q = q.Where("app_id = ?", filter.AppID)
	}
	return q, nil
}

// QueryEvents returns the events matching filter, newest first.
func (s *Store) QueryEvents(ctx context.Context, filter EventFilter) ([]models.Event, error) {
	q, err := s.filtered(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch {
	case filter.Limit > 0:
		q = q.Limit(filter.Limit)
	case filter.Offset > 0:
		// sqlite only accepts OFFSET after a LIMIT
		q = q.Limit(math.MaxInt32)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []eventRow
	if err := q.Order("timestamp DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, storageErr("query events", err)
	}

	events := make([]models.Event, 0, len(rows))
	for i := range rows {
		event, err := rows[i].toEvent()
		if err != nil {
			return nil, storageErr("query events", err)
		}
		events = append(events, event)
	}
	return events, nil
}

// CountEvents returns how many events match filter, ignoring Limit and Offset.
func (s *Store) CountEvents(ctx context.Context, filter EventFilter) (int64, error) {
	q, err := s.filtered(ctx, filter)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, storageErr("count events", err)
	}
	return n, nil
}

// GetRecentEvents returns the newest limit events; limit <= 0 means 20.
func (s *Store) GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return s.QueryEvents(ctx, EventFilter{Limit: limit})
}
