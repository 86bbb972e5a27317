package apps

import (
	"testing"
	"time"

	"trackpoint/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func counterEvent(device string, typ models.EventType, at time.Time) *models.Event {
	return &models.Event{
		EventID:    "e-" + device + at.Format("150405"),
		EventType:  typ,
		DeviceID:   device,
		ServerTime: at.UnixMilli(),
	}
}

func totalEvents(c *LiveCounter) int {
	n := 0
	for _, b := range c.buckets {
		n += b.events
	}
	return n
}

func TestNewLiveCounter(t *testing.T) {
	now := time.Now().UTC()
	counter := NewLiveCounter(func() time.Time { return now })
	defer counter.Stop()

	if counter.currentIndex != 0 {
		t.Errorf("Expected currentIndex to be 0, got %d", counter.currentIndex)
	}
	if !counter.lastMinute.Equal(now.Truncate(time.Minute)) {
		t.Errorf("Expected lastMinute to be %v, got %v", now.Truncate(time.Minute), counter.lastMinute)
	}
	if totalEvents(counter) != 0 {
		t.Errorf("Expected all buckets to be empty, got %d events", totalEvents(counter))
	}

	// Stop is idempotent
	counter.Stop()
}

func TestLiveCounterAdd(t *testing.T) {
	baseTime := time.Date(2025, 8, 24, 12, 0, 30, 0, time.UTC)
	clock := &fakeClock{t: baseTime}

	tests := []struct {
		name        string
		eventTime   time.Time
		expectAdded bool
		expectIndex int
	}{
		{
			name:        "current minute event",
			eventTime:   baseTime,
			expectAdded: true,
			expectIndex: 0,
		},
		{
			name:        "5 minutes ago",
			eventTime:   baseTime.Add(-5 * time.Minute),
			expectAdded: true,
			expectIndex: (0 - 5 + CounterWindowMinutes) % CounterWindowMinutes, // 25
		},
		{
			name:        "29 minutes ago (oldest valid)",
			eventTime:   baseTime.Add(-29 * time.Minute),
			expectAdded: true,
			expectIndex: (0 - 29 + CounterWindowMinutes) % CounterWindowMinutes, // 1
		},
		{
			name:        "30 minutes ago (too old)",
			eventTime:   baseTime.Add(-30 * time.Minute),
			expectAdded: false,
			expectIndex: -1,
		},
		{
			name:        "future event (should go to current)",
			eventTime:   baseTime.Add(5 * time.Minute),
			expectAdded: true,
			expectIndex: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counter := newLiveCounter(clock.Now)
			counter.Add(counterEvent("d1", models.EventTypeClick, tt.eventTime))

			if tt.expectAdded {
				if counter.buckets[tt.expectIndex].events != 1 {
					t.Errorf("Expected 1 event in bucket %d, got %d", tt.expectIndex, counter.buckets[tt.expectIndex].events)
				}
				if _, ok := counter.buckets[tt.expectIndex].devices["d1"]; !ok {
					t.Errorf("Expected device d1 in bucket %d", tt.expectIndex)
				}
			} else if n := totalEvents(counter); n != 0 {
				t.Errorf("Expected no events to be added, but found %d events", n)
			}
		})
	}
}

func TestLiveCounterCountsSince(t *testing.T) {
	baseTime := time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: baseTime}
	counter := newLiveCounter(clock.Now)

	counter.Add(counterEvent("d1", models.EventTypePageView, baseTime))
	counter.Add(counterEvent("d1", models.EventTypePageView, baseTime.Add(10*time.Second)))
	counter.Add(counterEvent("d2", models.EventTypeClick, baseTime.Add(20*time.Second)))
	counter.Add(counterEvent("d1", models.EventTypePageView, baseTime.Add(-5*time.Minute)))
	counter.Add(counterEvent("d3", models.EventTypeClick, baseTime.Add(-25*time.Minute)))

	base := toMinutesSinceEpoch(baseTime)

	tests := []struct {
		name         string
		startMinutes int64
		expectLen    int
		expectFirst  int64
	}{
		{"whole window", base - 100, CounterWindowMinutes, base - (CounterWindowMinutes - 1)},
		{"from 10 minutes ago", base - 10, 11, base - 10},
		{"current minute only", base, 1, base},
		{"future start", base + 5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts := counter.CountsSince(tt.startMinutes)
			if len(counts) != tt.expectLen {
				t.Fatalf("Expected %d minutes, got %d", tt.expectLen, len(counts))
			}
			if tt.expectLen > 0 && counts[0].Minute != tt.expectFirst {
				t.Errorf("Expected first minute %d, got %d", tt.expectFirst, counts[0].Minute)
			}
		})
	}

	counts := counter.CountsSince(base - 5)
	if got := counts[len(counts)-1]; got != (MinuteCount{Minute: base, Events: 3, PageViews: 2, Devices: 2}) {
		t.Errorf("Unexpected current minute %+v", got)
	}
	if got := counts[0]; got != (MinuteCount{Minute: base - 5, Events: 1, PageViews: 1, Devices: 1}) {
		t.Errorf("Unexpected minute -5 %+v", got)
	}
	if got := counts[1]; got.Events != 0 {
		t.Errorf("Expected empty minute -4, got %+v", got)
	}
}

func TestLiveCounterAdvance(t *testing.T) {
	baseTime := time.Date(2025, 8, 24, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: baseTime}
	counter := newLiveCounter(clock.Now)

	counter.Add(counterEvent("d1", models.EventTypeClick, baseTime))

	// One minute later the first event is one bucket back
	clock.t = baseTime.Add(time.Minute)
	counter.Add(counterEvent("d2", models.EventTypeClick, clock.t))

	if counter.currentIndex != 1 {
		t.Errorf("Expected currentIndex to advance to 1, got %d", counter.currentIndex)
	}
	if !counter.lastMinute.Equal(baseTime.Add(time.Minute)) {
		t.Errorf("Expected lastMinute to advance by 1 minute, got %v", counter.lastMinute)
	}
	counts := counter.CountsSince(toMinutesSinceEpoch(baseTime))
	if len(counts) != 2 || counts[0].Events != 1 || counts[1].Events != 1 {
		t.Errorf("Expected one event in each of 2 minutes, got %+v", counts)
	}

	// 29 minutes later the first event is the oldest bucket, 30 minutes later it is gone
	clock.t = baseTime.Add(29 * time.Minute)
	if counts := counter.CountsSince(0); counts[0].Events != 1 {
		t.Errorf("Expected oldest bucket to hold 1 event, got %+v", counts[0])
	}
	clock.t = baseTime.Add(30 * time.Minute)
	if n := totalEvents(counter.advanced()); n != 1 {
		t.Errorf("Expected 1 event left after eviction, got %d", n)
	}

	// A gap longer than the window clears everything
	clock.t = baseTime.Add(3 * time.Hour)
	if n := totalEvents(counter.advanced()); n != 0 {
		t.Errorf("Expected empty buffer after long gap, got %d events", n)
	}
	if !counter.lastMinute.Equal(clock.t) {
		t.Errorf("Expected lastMinute %v, got %v", clock.t, counter.lastMinute)
	}
}

// advanced moves c to its clock's current minute, as the advance routine does.
func (c *LiveCounter) advanced() *LiveCounter {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceTo(c.now())
	return c
}

func TestToMinutesSinceEpoch(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected int64
	}{
		{
			name:     "unix epoch",
			time:     time.Unix(0, 0).UTC(),
			expected: 0,
		},
		{
			name:     "one hour later",
			time:     time.Unix(3600, 0).UTC(),
			expected: 60,
		},
		{
			name:     "with seconds and milliseconds",
			time:     time.Unix(3665, 123000000).UTC(), // 1 hour, 1 minute, 5 seconds, 123ms
			expected: 61,                               // Should truncate to 61 minutes
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := toMinutesSinceEpoch(tt.time)
			if result != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, result)
			}
			if back := fromMinutesSinceEpoch(result); !back.Equal(tt.time.Truncate(time.Minute)) {
				t.Errorf("Expected round trip to %v, got %v", tt.time.Truncate(time.Minute), back)
			}
		})
	}
}
