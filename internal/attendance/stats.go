package attendance

import (
	"math"
	"time"
)

// DefaultStreakWindow is how many days back a streak is looked for.
const DefaultStreakWindow = 30

// Stats summarises a record history.
type Stats struct {
	TotalDays    int `json:"total_days"`
	AttendedDays int `json:"attended_days"`
	Percentage   int `json:"percentage"`
	Streak       int `json:"streak"`
}

// ComputeStats derives Stats from records in ledger order, bucketing days in loc.
//
// TotalDays counts whole days (rounded up) since the first record. Streak counts
// consecutive days with a record walking back from today for at most window days;
// an empty today is skipped rather than ending the walk.
func ComputeStats(records []Record, now time.Time, loc *time.Location, window int) Stats {
	if len(records) == 0 {
		return Stats{}
	}

	days := attendedDays(records, loc)
	total := int(math.Ceil(float64(now.Sub(records[0].Timestamp)) / float64(24*time.Hour)))
	if total < 0 {
		total = 0
	}

	s := Stats{
		TotalDays:    total,
		AttendedDays: len(days),
		Streak:       streak(days, now, loc, window),
	}
	if total > 0 {
		s.Percentage = int(math.Round(float64(s.AttendedDays) / float64(total) * 100))
	}
	return s
}

func streak(days map[string]struct{}, now time.Time, loc *time.Location, window int) int {
	if window <= 0 {
		window = DefaultStreakWindow
	}
	today := startOfDay(now, loc)
	n := 0
	for i := 0; i < window; i++ {
		if _, ok := days[dayKey(today.AddDate(0, 0, -i), loc)]; ok {
			n++
		} else if i > 0 {
			break
		}
	}
	return n
}

// OnDay filters records to those whose calendar date in loc matches day.
func OnDay(records []Record, day time.Time, loc *time.Location) []Record {
	key := dayKey(day, loc)
	var out []Record
	for _, r := range records {
		if dayKey(r.Timestamp, loc) == key {
			out = append(out, r)
		}
	}
	return out
}

func attendedDays(records []Record, loc *time.Location) map[string]struct{} {
	days := make(map[string]struct{}, len(records))
	for _, r := range records {
		days[dayKey(r.Timestamp, loc)] = struct{}{}
	}
	return days
}

func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
