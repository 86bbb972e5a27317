package models

type Event struct {
	EventID    string     `json:"eventId"`
	EventName  string     `json:"eventName"`
	EventType  EventType  `json:"eventType"`
	Timestamp  int64      `json:"timestamp"`
	ServerTime int64      `json:"serverTime,omitempty"`
	UserID     *string    `json:"userId,omitempty"`
	DeviceID   string     `json:"deviceId"`
	SessionID  string     `json:"sessionId"`
	Platform   Platform   `json:"platform"`
	AppID      string     `json:"appId"`
	AppVersion string     `json:"appVersion"`
	SDKVersion string     `json:"sdkVersion"`
	PageURL    *string    `json:"pageUrl,omitempty"`
	PageTitle  *string    `json:"pageTitle,omitempty"`
	Referrer   *string    `json:"referrer,omitempty"`
	Properties Properties `json:"properties"`
}

// BatchPayload is the body of a batched delivery from an SDK.
type BatchPayload struct {
	Events []Event `json:"events"`
	SentAt int64   `json:"sentAt"`
}

type EventType string

// EventType constants
const (
	EventTypePageView    EventType = "page_view"
	EventTypeClick       EventType = "click"
	EventTypeExpose      EventType = "expose"
	EventTypeDuration    EventType = "duration"
	EventTypePerformance EventType = "performance"
	EventTypeCustom      EventType = "custom"
)

var eventTypes = map[EventType]struct{}{
	EventTypePageView:    {},
	EventTypeClick:       {},
	EventTypeExpose:      {},
	EventTypeDuration:    {},
	EventTypePerformance: {},
	EventTypeCustom:      {},
}

func (t EventType) Valid() bool {
	_, ok := eventTypes[t]
	return ok
}

type Platform string

// Platform constants
const (
	PlatformWeb     Platform = "web"
	PlatformMiniApp Platform = "miniapp"
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformRN      Platform = "rn"
	PlatformFlutter Platform = "flutter"
)

var platforms = map[Platform]struct{}{
	PlatformWeb:     {},
	PlatformMiniApp: {},
	PlatformIOS:     {},
	PlatformAndroid: {},
	PlatformRN:      {},
	PlatformFlutter: {},
}

func (p Platform) Valid() bool {
	_, ok := platforms[p]
	return ok
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
