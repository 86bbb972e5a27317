package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRecord is the ledger entry of one device.
type UserRecord struct {
	DeviceID     string  `json:"deviceId"`
	UserID       *string `json:"userId,omitempty"`
	FirstSeen    int64   `json:"firstSeen"`
	LastSeen     int64   `json:"lastSeen"`
	SessionCount int64   `json:"sessionCount"`
}

func isNewSession(tx *gorm.DB, deviceID, sessionID string) (bool, error) {
	var ids []uint64
	err := tx.Model(&eventRow{}).
		Where("device_id = ? AND session_id = ?", deviceID, sessionID).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return false, fmt.Errorf("lookup session %s/%s: %w", deviceID, sessionID, err)
	}
	return len(ids) == 0, nil
}

// upsertUser creates the ledger row on a device's first event and otherwise moves
// lastSeen to this event's timestamp. lastSeen is last-write-wins: an event that
// arrives out of order moves it backwards.
func upsertUser(tx *gorm.DB, row *eventRow, newSession bool) error {
	inc := 0
	if newSession {
		inc = 1
	}
	user := &userRow{
		DeviceID:     row.DeviceID,
		UserID:       row.UserID,
		FirstSeen:    row.Timestamp,
		LastSeen:     row.Timestamp,
		SessionCount: 1,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_seen":     row.Timestamp,
			"user_id":       gorm.Expr("COALESCE(?, users.user_id)", row.UserID),
			"session_count": gorm.Expr("users.session_count + ?", inc),
		}),
	}).Create(user).Error
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", row.DeviceID, err)
	}
	return nil
}

// GetUser returns the ledger entry of deviceID, or nil when the device was never seen.
func (s *Store) GetUser(ctx context.Context, deviceID string) (*UserRecord, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}
	return &UserRecord{
		DeviceID:     row.DeviceID,
		UserID:       row.UserID,
		FirstSeen:    row.FirstSeen,
		LastSeen:     row.LastSeen,
		SessionCount: row.SessionCount,
	}, nil
}
