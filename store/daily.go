package store

import (
	"context"
	"fmt"

	"trackpoint/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DailyStat is the traffic summary of one UTC day.
type DailyStat struct {
	Date       string `json:"date" gorm:"column:date"`
	PV         int64  `json:"pv" gorm:"column:pv"`
	UV         int64  `json:"uv" gorm:"column:uv"`
	EventCount int64  `json:"eventCount" gorm:"column:event_count"`
}

type TodayStats struct {
	PV         int64 `json:"pv" gorm:"column:pv"`
	UV         int64 `json:"uv" gorm:"column:uv"`
	EventCount int64 `json:"eventCount" gorm:"column:event_count"`
}

// EventStat counts the stored events of one (eventName, eventType) pair.
type EventStat struct {
	EventName string           `json:"eventName" gorm:"column:event_name"`
	EventType models.EventType `json:"eventType" gorm:"column:event_type"`
	Count     int64            `json:"count" gorm:"column:count"`
}

// updateDailyStats bumps the counters of the event's (day, app) row and recounts uv
// from the events table; uv is a distinct count, not an additive counter.
func updateDailyStats(tx *gorm.DB, row *eventRow) error {
	pv := 0
	if row.EventType == string(models.EventTypePageView) {
		pv = 1
	}
	stat := &dailyStatRow{Date: row.Day, AppID: row.AppID, PV: int64(pv), EventCount: 1}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}, {Name: "app_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"pv":          gorm.Expr("daily_stats.pv + ?", pv),
			"event_count": gorm.Expr("daily_stats.event_count + ?", 1),
		}),
	}).Create(stat).Error
	if err != nil {
		return fmt.Errorf("upsert daily stats %s/%s: %w", row.Day, row.AppID, err)
	}

	var uv int64
	err = tx.Model(&eventRow{}).
		Where("day = ? AND app_id = ?", row.Day, row.AppID).
		Distinct("device_id").
		Count(&uv).Error
	if err != nil {
		return fmt.Errorf("count uv %s/%s: %w", row.Day, row.AppID, err)
	}
	err = tx.Model(&dailyStatRow{}).
		Where("date = ? AND app_id = ?", row.Day, row.AppID).
		Update("uv", uv).Error
	if err != nil {
		return fmt.Errorf("update uv %s/%s: %w", row.Day, row.AppID, err)
	}
	return nil
}

// GetOverviewStats returns one row per day of the inclusive range in ascending
// order, summed across apps. Days without data are zero rows.
func (s *Store) GetOverviewStats(ctx context.Context, startDate, endDate string) ([]DailyStat, error) {
	r, ok, err := parseRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []DailyStat{}, nil
	}

	var rows []DailyStat
	err = s.db.WithContext(ctx).Model(&dailyStatRow{}).
		Select("date, SUM(pv) AS pv, SUM(uv) AS uv, SUM(event_count) AS event_count").
		Where("date >= ? AND date <= ?", startDate, endDate).
		Group("date").
		Order("date ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("overview stats", err)
	}

	byDate := make(map[string]DailyStat, len(rows))
	for _, row := range rows {
		byDate[row.Date] = row
	}
	days := r.days()
	out := make([]DailyStat, 0, len(days))
	for _, d := range days {
		stat, found := byDate[d]
		if !found {
			stat = DailyStat{Date: d}
		}
		out = append(out, stat)
	}
	return out, nil
}

// GetTodayStats sums the counters of the current UTC day across apps.
func (s *Store) GetTodayStats(ctx context.Context) (TodayStats, error) {
	today := s.now().UTC().Format(dayLayout)
	var out TodayStats
	err := s.db.WithContext(ctx).Model(&dailyStatRow{}).
		Select("COALESCE(SUM(pv), 0) AS pv, COALESCE(SUM(uv), 0) AS uv, COALESCE(SUM(event_count), 0) AS event_count").
		Where("date = ?", today).
		Scan(&out).Error
	if err != nil {
		return TodayStats{}, storageErr("today stats", err)
	}
	return out, nil
}

// GetEventStats counts stored events per (eventName, eventType) over the inclusive
// range, most frequent first.
func (s *Store) GetEventStats(ctx context.Context, startDate, endDate string) ([]EventStat, error) {
	r, ok, err := parseRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []EventStat{}, nil
	}
	from, to := r.millis()

	stats := make([]EventStat, 0)
	err = s.db.WithContext(ctx).Model(&eventRow{}).
		Select("event_name, event_type, COUNT(*) AS count").
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Group("event_name, event_type").
		Order("count DESC, event_name ASC").
		Scan(&stats).Error
	if err != nil {
		return nil, storageErr("event stats", err)
	}
	return stats, nil
}
