package apps

import (
	"sync"
	"time"

	"trackpoint/models"
)

const (
	CounterWindowMinutes = 30
)

// MinuteCount is the traffic of one app during one minute.
type MinuteCount struct {
	Minute    int64 `json:"minute"` // minutes since epoch
	Events    int   `json:"events"`
	PageViews int   `json:"pageViews"`
	Devices   int   `json:"devices"`
}

type bucket struct {
	events    int
	pageViews int
	devices   map[string]struct{}
}

// LiveCounter counts stored events in a m-minute circular buffer, with each bucket for
// one minute of server time.
type LiveCounter struct {
	buckets      [CounterWindowMinutes]bucket
	currentIndex int
	lastMinute   time.Time
	now          func() time.Time
	mu           sync.Mutex
	stop         chan struct{}
	stopOnce     sync.Once
}

// NewLiveCounter creates a LiveCounter with advance routine.
func NewLiveCounter(now func() time.Time) *LiveCounter {
	c := newLiveCounter(now)
	go c.advance()
	return c
}

func newLiveCounter(now func() time.Time) *LiveCounter {
	return &LiveCounter{
		lastMinute: now().UTC().Truncate(time.Minute),
		now:        now,
		stop:       make(chan struct{}),
	}
}

// Add counts an event in the bucket of its serverTime minute.
func (c *LiveCounter) Add(event *models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceTo(c.now())

	eventTime := time.UnixMilli(event.ServerTime).UTC().Truncate(time.Minute)
	if eventTime.Before(c.lastMinute.Add(-(CounterWindowMinutes - 1) * time.Minute)) {
		// Too old, discard
		return
	}
	if eventTime.After(c.lastMinute) {
		// Future event, count in current bucket
		eventTime = c.lastMinute
	}

	diffMinutes := int(c.lastMinute.Sub(eventTime) / time.Minute)
	index := (c.currentIndex - diffMinutes + CounterWindowMinutes) % CounterWindowMinutes
	b := &c.buckets[index]
	b.events++
	if event.EventType == models.EventTypePageView {
		b.pageViews++
	}
	if b.devices == nil {
		b.devices = make(map[string]struct{})
	}
	b.devices[event.DeviceID] = struct{}{}
}

// CountsSince returns one entry per minute from startMinutes (clamped to the window)
// up to the current minute, oldest first.
func (c *LiveCounter) CountsSince(startMinutes int64) []MinuteCount {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceTo(c.now())

	lastMinutes := toMinutesSinceEpoch(c.lastMinute)
	firstMinutes := lastMinutes - (CounterWindowMinutes - 1)
	if startMinutes < firstMinutes {
		startMinutes = firstMinutes
	}

	counts := make([]MinuteCount, 0)
	for minute := startMinutes; minute <= lastMinutes; minute++ {
		diff := int(lastMinutes - minute)
		b := c.buckets[(c.currentIndex-diff+CounterWindowMinutes)%CounterWindowMinutes]
		counts = append(counts, MinuteCount{
			Minute:    minute,
			Events:    b.events,
			PageViews: b.pageViews,
			Devices:   len(b.devices),
		})
	}
	return counts
}

// advanceTo shifts the buffer up to the minute of t, evicting old buckets. Callers
// hold c.mu.
func (c *LiveCounter) advanceTo(t time.Time) {
	target := t.UTC().Truncate(time.Minute)
	steps := int(target.Sub(c.lastMinute) / time.Minute)
	if steps <= 0 {
		return
	}
	if steps >= CounterWindowMinutes {
		c.buckets = [CounterWindowMinutes]bucket{}
		c.currentIndex = 0
		c.lastMinute = target
		return
	}
	for i := 0; i < steps; i++ {
		c.currentIndex = (c.currentIndex + 1) % CounterWindowMinutes
		c.buckets[c.currentIndex] = bucket{}
	}
	c.lastMinute = target
}

// advance shifts the buffer every minute to evict old data.
func (c *LiveCounter) advance() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.advanceTo(c.now())
			c.mu.Unlock()
		}
	}
}

func (c *LiveCounter) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func toMinutesSinceEpoch(t time.Time) int64 {
	return t.Unix() / 60
}

// Helper function to convert minutes since epoch to time
func fromMinutesSinceEpoch(minutes int64) time.Time {
	return time.Unix(minutes*60, 0).UTC()
}
