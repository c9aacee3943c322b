// Package scoring holds the pure member scoring functions: churn risk,
// commitment, habit decay, risk flags and lifecycle stage. Nothing in this
// package performs I/O.
package scoring

import (
	"math"
	"strings"
)

type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Sub-score weights. The tuning is the reference behaviour, not a model fit.
const (
	weightAttendance = 0.40
	weightFrequency  = 0.15
	weightProximity  = 0.15
	weightAge        = 0.10
	weightEmployment = 0.08
	weightTenure     = 0.07

	campaignSentBump = 1.5
	inactiveDays     = 7
)

// ChurnInput is the per-member data the churn model needs. Pointer fields are
// optional; nil means unknown.
type ChurnInput struct {
	DaysSinceLastVisit *int
	DaysSinceJoined    *int
	VisitsLast30Days   int
	DistanceKm         *float64
	Age                *int
	EmploymentStatus   string
	CampaignSent       bool
}

// ChurnFactors exposes the unweighted sub-scores for explanation.
type ChurnFactors struct {
	Attendance float64 `json:"attendance"`
	Frequency  float64 `json:"frequency"`
	Proximity  float64 `json:"proximity"`
	Age        float64 `json:"age"`
	Employment float64 `json:"employment"`
	Tenure     float64 `json:"tenure"`
}

type ChurnResult struct {
	Score         int          `json:"score"`
	Level         RiskLevel    `json:"level"`
	PrimaryReason string       `json:"primary_reason,omitempty"`
	Factors       ChurnFactors `json:"factors"`
}

// ChurnRisk computes the 0-100 churn risk score and level. A member who never
// visited, or visited today, is always {none, 0}.
func ChurnRisk(in ChurnInput) ChurnResult {
	if in.DaysSinceLastVisit == nil || *in.DaysSinceLastVisit <= 0 {
		return ChurnResult{Score: 0, Level: RiskNone}
	}
	days := *in.DaysSinceLastVisit

	f := ChurnFactors{
		Attendance: AttendanceScore(days),
		Frequency:  FrequencyScore(in.VisitsLast30Days),
		Proximity:  ProximityScore(in.DistanceKm),
		Age:        AgeScore(in.Age),
		Employment: EmploymentScore(in.EmploymentStatus),
		Tenure:     TenureScore(in.DaysSinceJoined, days),
	}

	contributions := []struct {
		reason string
		value  float64
	}{
		{"attendance", f.Attendance * weightAttendance},
		{"visit_frequency", f.Frequency * weightFrequency},
		{"proximity", f.Proximity * weightProximity},
		{"age", f.Age * weightAge},
		{"employment", f.Employment * weightEmployment},
		{"tenure", f.Tenure * weightTenure},
	}

	var total float64
	primary, best := "", -1.0
	for _, c := range contributions {
		total += c.value
		if c.value > best {
			primary, best = c.reason, c.value
		}
	}
	if in.CampaignSent && days >= inactiveDays {
		total += campaignSentBump
	}

	score := int(math.Round(clamp(total, 0, 100)))
	return ChurnResult{
		Score:         score,
		Level:         LevelFor(score),
		PrimaryReason: primary,
		Factors:       f,
	}
}

// LevelFor maps a score onto a risk level.
func LevelFor(score int) RiskLevel {
	switch {
	case score >= 70:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	case score >= 15:
		return RiskLow
	default:
		return RiskNone
	}
}

// band is one linear segment of the attendance curve.
type band struct {
	fromDay, toDay     float64
	fromScore, toScore float64
}

var attendanceBands = []band{
	{0, 7, 0, 20},
	{7, 14, 20, 40},
	{14, 21, 40, 55},
	{21, 30, 55, 70},
	{30, 50, 70, 80},
	{50, 60, 80, 85},
}

// AttendanceScore is a piecewise-linear curve over days since the last visit,
// saturating at 95 with a slow tail beyond 60 days.
func AttendanceScore(daysSinceLastVisit int) float64 {
	d := float64(daysSinceLastVisit)
	if d <= 0 {
		return 0
	}
	if d >= 60 {
		return 85 + math.Min(10, (d-60)/2)
	}
	for _, b := range attendanceBands {
		if d <= b.toDay {
			return b.fromScore + (d-b.fromDay)/(b.toDay-b.fromDay)*(b.toScore-b.fromScore)
		}
	}
	return 85
}

func FrequencyScore(visitsLast30 int) float64 {
	switch {
	case visitsLast30 >= 8:
		return 0
	case visitsLast30 >= 6:
		return 10
	case visitsLast30 >= 4:
		return 25
	case visitsLast30 >= 2:
		return 40
	case visitsLast30 == 1:
		return 50
	default:
		return 60
	}
}

func ProximityScore(distanceKm *float64) float64 {
	if distanceKm == nil {
		return 20
	}
	km := *distanceKm
	switch {
	case km <= 2:
		return 0
	case km <= 5:
		return 15
	case km <= 10:
		return 30
	case km <= 20:
		return 50
	case km <= 30:
		return 70
	default:
		return 85
	}
}

func AgeScore(age *int) float64 {
	if age == nil {
		return 20
	}
	switch a := *age; {
	case a < 20:
		return 50
	case a <= 25:
		return 30
	case a <= 35:
		return 20
	case a < 50:
		return 10
	default:
		return 5
	}
}

func EmploymentScore(status string) float64 {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "student":
		return 40
	case "unemployed", "part_time", "part-time", "parttime":
		return 20
	case "full_time", "full-time", "fulltime", "employed":
		return 5
	default:
		return 15
	}
}

// TenureScore captures the interaction between membership age and inactivity.
func TenureScore(daysSinceJoined *int, daysSinceLastVisit int) float64 {
	if daysSinceJoined == nil {
		return 15
	}
	switch t := *daysSinceJoined; {
	case t < 30 && daysSinceLastVisit >= inactiveDays:
		return 50
	case t < 30:
		return 25
	case t < 90:
		return 15
	default:
		return 5
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
