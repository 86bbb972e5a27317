package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxKeyLength bounds the identifier fields that are indexed in storage.
const MaxKeyLength = 191

// ValidationError lists every field of an event that failed shape validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s", strings.Join(e.Fields, "; "))
}

// Validate checks the event shape an SDK must deliver: required fields present,
// enumerations closed, eventId a UUID. It does not check business rules.
func Validate(event *Event) error {
	var fields []string
	if _, err := uuid.Parse(event.EventID); err != nil {
		fields = append(fields, "eventId: must be a UUID")
	}
	fields = appendKeyProblem(fields, "eventName", event.EventName)
	if !event.EventType.Valid() {
		fields = append(fields, fmt.Sprintf("eventType: unknown value %q", event.EventType))
	}
	if event.Timestamp <= 0 {
		fields = append(fields, "timestamp: must be positive")
	}
	if event.ServerTime < 0 {
		fields = append(fields, "serverTime: must be positive")
	}
	fields = appendKeyProblem(fields, "deviceId", event.DeviceID)
	fields = appendKeyProblem(fields, "sessionId", event.SessionID)
	if event.UserID != nil && len(*event.UserID) > MaxKeyLength {
		fields = append(fields, fmt.Sprintf("userId: longer than %d bytes", MaxKeyLength))
	}
	if !event.Platform.Valid() {
		fields = append(fields, fmt.Sprintf("platform: unknown value %q", event.Platform))
	}
	fields = appendKeyProblem(fields, "appId", event.AppID)
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func appendKeyProblem(fields []string, name, value string) []string {
	switch {
	case value == "":
		return append(fields, name+": required")
	case len(value) > MaxKeyLength:
		return append(fields, fmt.Sprintf("%s: longer than %d bytes", name, MaxKeyLength))
	}
	return fields
}
