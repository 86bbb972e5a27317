package store

import (
	"context"
	"sort"
)

type FunnelStep struct {
	Step           int     `json:"step"`
	EventName      string  `json:"eventName"`
	Users          int     `json:"users"`
	ConversionRate float64 `json:"conversionRate"`
	DropoffRate    float64 `json:"dropoffRate"`
}

type FunnelResult struct {
	Steps             []FunnelStep `json:"steps"`
	OverallConversion float64      `json:"overallConversion"`
}

type occurrence struct {
	DeviceID  string `gorm:"column:device_id"`
	Timestamp int64  `gorm:"column:timestamp"`
}

// GetFunnelAnalysis counts, per step, the devices that completed every previous step
// in order. A device reaches step i when it produced steps[i] at or after the time it
// reached step i-1; the earliest such time becomes its step i time.
func (s *Store) GetFunnelAnalysis(ctx context.Context, steps []string, startDate, endDate string) (*FunnelResult, error) {
	result := &FunnelResult{Steps: []FunnelStep{}}
	if len(steps) == 0 {
		return result, nil
	}
	r, ok, err := parseRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	from, to := r.millis()

	// reached holds each surviving device's time at the previous step
	var reached map[string]int64
	for i, name := range steps {
		var times map[string][]int64
		if ok {
			times, err = s.occurrences(ctx, name, from, to)
			if err != nil {
				return nil, err
			}
		}

		next := make(map[string]int64)
		if i == 0 {
			for device, ts := range times {
				next[device] = ts[0]
			}
		} else {
			for device, prev := range reached {
				ts := times[device]
				j := sort.Search(len(ts), func(k int) bool { return ts[k] >= prev })
				if j < len(ts) {
					next[device] = ts[j]
				}
			}
		}

		step := FunnelStep{Step: i + 1, EventName: name, Users: len(next)}
		if i == 0 {
			if step.Users > 0 {
				step.ConversionRate = 100
			}
		} else {
			first := result.Steps[0].Users
			prev := result.Steps[i-1].Users
			step.ConversionRate = round2(percent(step.Users, first))
			step.DropoffRate = round2(percent(prev-step.Users, prev))
		}
		result.Steps = append(result.Steps, step)
		reached = next
	}

	result.OverallConversion = round2(percent(result.Steps[len(result.Steps)-1].Users, result.Steps[0].Users))
	return result, nil
}

// occurrences returns the ascending timestamps of eventName per device within [from, to).
func (s *Store) occurrences(ctx context.Context, eventName string, from, to int64) (map[string][]int64, error) {
	var rows []occurrence
	err := s.db.WithContext(ctx).Model(&eventRow{}).
		Select("device_id, timestamp").
		Where("event_name = ? AND timestamp >= ? AND timestamp < ?", eventName, from, to).
		Order("device_id ASC").
		Order("timestamp ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("funnel "+eventName, err)
	}
	out := make(map[string][]int64)
	for _, row := range rows {
		out[row.DeviceID] = append(out[row.DeviceID], row.Timestamp)
	}
	return out, nil
}
