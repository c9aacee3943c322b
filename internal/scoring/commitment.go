package scoring

import (
	"math"
	"sort"
	"time"
)

const (
	day = 24 * time.Hour

	// DefaultExpectedVisitsPerWeek is used when a tenant has no target.
	DefaultExpectedVisitsPerWeek = 2.0

	maxConsistencyRatio = 1.5
	recencyCap          = 40.0
	consistencyCap      = 40.0
	tenureBonusCap      = 20.0
	decayWindowDays     = 30
)

// History is a member's visit log plus the facts needed to interpret it.
type History struct {
	JoinedAt              time.Time
	Visits                []time.Time
	ExpectedVisitsPerWeek float64
}

type CommitmentResult struct {
	Score              int     `json:"score"`
	Recency            float64 `json:"recency"`
	Consistency        float64 `json:"consistency"`
	TenureBonus        float64 `json:"tenure_bonus"`
	ConsistencyRatio   float64 `json:"consistency_ratio"`
	AttendanceDecay    int     `json:"attendance_decay"`
	DeclineVelocity    int     `json:"decline_velocity"`
	DaysSinceLastVisit *int    `json:"days_since_last_visit,omitempty"`
	LastGapDays        *int    `json:"last_gap_days,omitempty"`
	VisitsLast14Days   int     `json:"visits_last_14_days"`
	VisitsLast30Days   int     `json:"visits_last_30_days"`
	TotalVisits        int     `json:"total_visits"`
	TenureDays         int     `json:"tenure_days"`
}

// CommitmentAsOf recomputes the commitment score as it would have been on
// asOf, using only visits on or before that instant.
func CommitmentAsOf(h History, asOf time.Time) CommitmentResult {
	visits := visitsUpTo(h.Visits, asOf)

	res := CommitmentResult{
		TotalVisits: len(visits),
		TenureDays:  DaysBetween(h.JoinedAt, asOf),
	}
	if res.TenureDays < 0 {
		res.TenureDays = 0
	}

	for _, v := range visits {
		age := DaysBetween(v, asOf)
		// the 14 day window includes its last day
		if age <= 14 {
			res.VisitsLast14Days++
		}
		if age < 30 {
			res.VisitsLast30Days++
		}
	}

	if n := len(visits); n > 0 {
		since := DaysBetween(visits[n-1], asOf)
		res.DaysSinceLastVisit = &since
		if n > 1 {
			gap := DaysBetween(visits[n-2], visits[n-1])
			res.LastGapDays = &gap
		}
	}

	res.Recency = recencyPoints(res.DaysSinceLastVisit)

	expected := h.ExpectedVisitsPerWeek
	if expected <= 0 {
		expected = DefaultExpectedVisitsPerWeek
	}
	ratio := float64(res.VisitsLast30Days) / (expected * 30 / 7)
	res.ConsistencyRatio = math.Min(ratio, maxConsistencyRatio)
	res.Consistency = res.ConsistencyRatio / maxConsistencyRatio * consistencyCap

	res.TenureBonus = tenureBonus(res.TenureDays, res.VisitsLast30Days)

	total := res.Recency + res.Consistency + res.TenureBonus
	res.Score = int(math.Round(clamp(total, 0, 100)))
	res.AttendanceDecay = int(math.Round(100 * (1 - math.Min(res.ConsistencyRatio, 1))))
	res.DeclineVelocity = declineVelocity(res.LastGapDays)
	return res
}

// HabitDecayVelocity is the per-day change of the commitment score over the
// trailing 30 days. Negative values mean the habit is eroding.
func HabitDecayVelocity(h History, asOf time.Time) float64 {
	now := CommitmentAsOf(h, asOf).Score
	before := CommitmentAsOf(h, asOf.Add(-decayWindowDays*day)).Score
	return float64(now-before) / decayWindowDays
}

func recencyPoints(daysSince *int) float64 {
	if daysSince == nil {
		return 0
	}
	switch d := *daysSince; {
	case d <= 3:
		return recencyCap
	case d <= 7:
		return 30
	case d <= 14:
		return 20
	case d <= 21:
		return 10
	case d <= 30:
		return 5
	default:
		return 0
	}
}

func tenureBonus(tenureDays, visits30 int) float64 {
	switch {
	case tenureDays >= 180 && visits30 >= 4:
		return tenureBonusCap
	case tenureDays >= 90 && visits30 >= 3:
		return 15
	case tenureDays >= 30 && visits30 >= 2:
		return 10
	default:
		return 0
	}
}

func declineVelocity(lastGap *int) int {
	if lastGap == nil {
		return 0
	}
	switch g := *lastGap; {
	case g >= 21:
		return 80
	case g >= 14:
		return 55
	case g >= 7:
		return 30
	default:
		return 0
	}
}

// visitsUpTo returns the visits at or before asOf, oldest first.
func visitsUpTo(all []time.Time, asOf time.Time) []time.Time {
	out := make([]time.Time, 0, len(all))
	for _, v := range all {
		if !v.After(asOf) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// DaysBetween counts whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}
