package store

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

const (
	defaultRetentionDays = 7
	maxRetentionDays     = 90
)

type Cohort struct {
	CohortDate string    `json:"cohortDate"`
	CohortSize int       `json:"cohortSize"`
	Retention  []float64 `json:"retention"`
}

type RetentionResult struct {
	Cohorts          []Cohort  `json:"cohorts"`
	AverageRetention []float64 `json:"averageRetention"`
	Days             int       `json:"days"`
}

type activity struct {
	Day    string `gorm:"column:day"`
	UserID uint64 `gorm:"column:user_id"`
}

// GetRetentionAnalysis builds one cohort per day of the inclusive range from the
// devices first seen that day, and for each offset k in [0, days) the share of the
// cohort with at least one event on day d+k.
//
// days <= 0 selects 7. Windows longer than 90 days are capped at 90; callers read
// the applied window from RetentionResult.Days, which always matches the length of
// every retention vector.
func (s *Store) GetRetentionAnalysis(ctx context.Context, startDate, endDate string, days int) (*RetentionResult, error) {
	if days <= 0 {
		days = defaultRetentionDays
	}
	if days > maxRetentionDays {
		days = maxRetentionDays
	}
	result := &RetentionResult{
		Cohorts:          []Cohort{},
		AverageRetention: make([]float64, days),
		Days:             days,
	}

	r, ok, err := parseRange(startDate, endDate)
	if err != nil {
		return nil, err
	}
	if !ok {
		return result, nil
	}

	cohorts, err := s.cohorts(ctx, r)
	if err != nil {
		return nil, err
	}
	active, err := s.activeDevices(ctx, r, days)
	if err != nil {
		return nil, err
	}

	today := s.now().UTC().Format(dayLayout)
	sums := make([]float64, days)
	counts := make([]int, days)

	for d := r.first; !d.After(r.last); d = d.Add(oneDay) {
		date := d.Format(dayLayout)
		members := cohorts[date]
		size := 0
		if members != nil {
			size = int(members.GetCardinality())
		}
		cohort := Cohort{CohortDate: date, CohortSize: size, Retention: make([]float64, days)}
		for k := 0; k < days; k++ {
			target := d.AddDate(0, 0, k).Format(dayLayout)
			if size == 0 || target > today {
				continue
			}
			retained := 0
			if bm := active[target]; bm != nil {
				retained = int(roaring64.And(members, bm).GetCardinality())
			}
			rate := percent(retained, size)
			cohort.Retention[k] = round2(rate)
			sums[k] += rate
			counts[k]++
		}
		result.Cohorts = append(result.Cohorts, cohort)
	}

	for k := range sums {
		if counts[k] > 0 {
			result.AverageRetention[k] = round2(sums[k] / float64(counts[k]))
		}
	}
	return result, nil
}

// cohorts maps each day of r to the ledger ids of the devices first seen that day.
func (s *Store) cohorts(ctx context.Context, r dayRange) (map[string]*roaring64.Bitmap, error) {
	from, to := r.millis()
	var users []userRow
	err := s.db.WithContext(ctx).
		Select("id, first_seen").
		Where("first_seen >= ? AND first_seen < ?", from, to).
		Find(&users).Error
	if err != nil {
		return nil, storageErr("retention cohorts", err)
	}
	out := make(map[string]*roaring64.Bitmap)
	for _, u := range users {
		day := dayOf(u.FirstSeen)
		bm, ok := out[day]
		if !ok {
			bm = roaring64.New()
			out[day] = bm
		}
		bm.Add(u.ID)
	}
	return out, nil
}

// activeDevices maps each day from r.first to r.last+days-1 to the ledger ids of the
// devices with at least one event that day.
func (s *Store) activeDevices(ctx context.Context, r dayRange, days int) (map[string]*roaring64.Bitmap, error) {
	from, _ := r.millis()
	to := r.last.AddDate(0, 0, days).UnixMilli()

	var rows []activity
	err := s.db.WithContext(ctx).Model(&eventRow{}).
		Distinct("events.day", "users.id AS user_id").
		Joins("JOIN users ON users.device_id = events.device_id").
		Where("events.timestamp >= ? AND events.timestamp < ?", from, to).
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("retention activity", err)
	}
	out := make(map[string]*roaring64.Bitmap)
	for _, row := range rows {
		bm, ok := out[row.Day]
		if !ok {
			bm = roaring64.New()
			out[row.Day] = bm
		}
		bm.Add(row.UserID)
	}
	return out, nil
}
