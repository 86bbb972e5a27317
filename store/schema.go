package store

import (
	"encoding/json"
	"fmt"

	"trackpoint/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type eventRow struct {
	ID         uint64         `gorm:"primaryKey"`
	EventID    string         `gorm:"column:event_id;size:64;not null;uniqueIndex"`
	EventName  string         `gorm:"column:event_name;size:191;not null;index"`
	EventType  string         `gorm:"column:event_type;size:32;not null"`
	Timestamp  int64          `gorm:"column:timestamp;not null;index"`
	ServerTime int64          `gorm:"column:server_time;not null"`
	Day        string         `gorm:"column:day;size:10;not null;index:idx_events_day_app,priority:1"`
	UserID     *string        `gorm:"column:user_id;size:191;index"`
	DeviceID   string         `gorm:"column:device_id;size:191;not null;index;index:idx_events_device_session,priority:1"`
	SessionID  string         `gorm:"column:session_id;size:191;not null;index:idx_events_device_session,priority:2"`
	Platform   string         `gorm:"column:platform;size:32;not null"`
	AppID      string         `gorm:"column:app_id;size:191;not null;index:idx_events_day_app,priority:2"`
	AppVersion string         `gorm:"column:app_version"`
	SDKVersion string         `gorm:"column:sdk_version"`
	PageURL    *string        `gorm:"column:page_url"`
	PageTitle  *string        `gorm:"column:page_title"`
	Referrer   *string        `gorm:"column:referrer"`
	Properties datatypes.JSON `gorm:"column:properties"`
}

func (eventRow) TableName() string { return "events" }

type dailyStatRow struct {
	ID         uint64 `gorm:"primaryKey"`
	Date       string `gorm:"column:date;size:10;not null;uniqueIndex:idx_daily_stats_date_app,priority:1"`
	AppID      string `gorm:"column:app_id;size:191;not null;uniqueIndex:idx_daily_stats_date_app,priority:2"`
	PV         int64  `gorm:"column:pv;not null"`
	UV         int64  `gorm:"column:uv;not null"`
	EventCount int64  `gorm:"column:event_count;not null"`
}

func (dailyStatRow) TableName() string { return "daily_stats" }

// userRow is the device ledger. Its integer ID doubles as the device's member id in
// the retention bitmaps.
type userRow struct {
	ID           uint64  `gorm:"primaryKey"`
	DeviceID     string  `gorm:"column:device_id;size:191;not null;uniqueIndex"`
	UserID       *string `gorm:"column:user_id;size:191"`
	FirstSeen    int64   `gorm:"column:first_seen;not null;index"`
	LastSeen     int64   `gorm:"column:last_seen;not null"`
	SessionCount int64   `gorm:"column:session_count;not null"`
}

func (userRow) TableName() string { return "users" }

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&eventRow{}, &dailyStatRow{}, &userRow{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func toEventRow(event *models.Event) (*eventRow, error) {
	props, err := json.Marshal(event.Properties)
	if err != nil {
		return nil, fmt.Errorf("marshal properties of %s: %w", event.EventID, err)
	}
	return &eventRow{
		EventID:    event.EventID,
		EventName:  event.EventName,
		EventType:  string(event.EventType),
		Timestamp:  event.Timestamp,
		ServerTime: event.ServerTime,
		Day:        dayOf(event.Timestamp),
		UserID:     event.UserID,
		DeviceID:   event.DeviceID,
		SessionID:  event.SessionID,
		Platform:   string(event.Platform),
		AppID:      event.AppID,
		AppVersion: event.AppVersion,
		SDKVersion: event.SDKVersion,
		PageURL:    event.PageURL,
		PageTitle:  event.PageTitle,
		Referrer:   event.Referrer,
		Properties: datatypes.JSON(props),
	}, nil
}

func (r *eventRow) toEvent() (models.Event, error) {
	event := models.Event{
		EventID:    r.EventID,
		EventName:  r.EventName,
		EventType:  models.EventType(r.EventType),
		Timestamp:  r.Timestamp,
		ServerTime: r.ServerTime,
		UserID:     r.UserID,
		DeviceID:   r.DeviceID,
		SessionID:  r.SessionID,
		Platform:   models.Platform(r.Platform),
		AppID:      r.AppID,
		AppVersion: r.AppVersion,
		SDKVersion: r.SDKVersion,
		PageURL:    r.PageURL,
		PageTitle:  r.PageTitle,
		Referrer:   r.Referrer,
		Properties: models.Properties{},
	}
	if len(r.Properties) > 0 {
		if err := json.Unmarshal(r.Properties, &event.Properties); err != nil {
			return models.Event{}, fmt.Errorf("unmarshal properties of %s: %w", r.EventID, err)
		}
	}
	return event, nil
}
