package scoring

import "time"

type Stage string

const (
	StageWinBackWindow           Stage = "win_back_window"
	StageOnboardingVulnerability Stage = "onboarding_vulnerability"
	StageAtRiskSilentQuit        Stage = "at_risk_silent_quit"
	StageEmotionalDisengagement  Stage = "emotional_disengagement"
	StagePlateauBoredomRisk      Stage = "plateau_boredom_risk"
	StageMomentumIdentity        Stage = "momentum_identity"
	StageHabitFormation          Stage = "habit_formation"
)

type Flags struct {
	NoRecentVisits         bool `json:"no_recent_visits"`
	LargeGap               bool `json:"large_gap"`
	NewMemberLowAttendance bool `json:"new_member_low_attendance"`
	RapidDecline           bool `json:"rapid_decline"`
	DecliningFrequency     bool `json:"declining_frequency"`
	InconsistentPattern    bool `json:"inconsistent_pattern"`
}

// RiskFlags derives the boolean risk signals from a commitment computation.
func RiskFlags(c CommitmentResult) Flags {
	return Flags{
		NoRecentVisits:         c.DaysSinceLastVisit == nil || *c.DaysSinceLastVisit > 14 || c.VisitsLast14Days == 0,
		LargeGap:               c.LastGapDays != nil && *c.LastGapDays >= 14,
		NewMemberLowAttendance: c.TenureDays <= 30 && c.TotalVisits < 2,
		RapidDecline:           c.DeclineVelocity >= 55,
		DecliningFrequency:     c.DeclineVelocity >= 30 && c.ConsistencyRatio < 0.75,
		InconsistentPattern:    c.TotalVisits >= 2 && c.ConsistencyRatio < 0.5,
	}
}

// StageInput is everything the stage classifier looks at.
type StageInput struct {
	MemberStatus       string
	HasVisits          bool
	TenureDays         int
	RiskScore          int
	DaysSinceLastVisit *int
	Commitment         int
	DecayVelocity      float64
	VisitsLast30Days   int
	Flags              Flags
}

func (in StageInput) daysSinceAtLeast(n int) bool {
	return in.DaysSinceLastVisit != nil && *in.DaysSinceLastVisit >= n
}

// StageRule pairs a predicate with the stage it yields.
type StageRule struct {
	Name  string
	Match func(StageInput) bool
	Stage Stage
}

// StageRules is evaluated top to bottom; the first match wins. Predicates
// overlap on purpose, so order is the priority.
var StageRules = []StageRule{
	{"status_lapsed", func(in StageInput) bool {
		return in.MemberStatus == "inactive" || in.MemberStatus == "cancelled"
	}, StageWinBackWindow},
	{"no_history_yet", func(in StageInput) bool {
		return !in.HasVisits && in.TenureDays > 0
	}, StageOnboardingVulnerability},
	{"silent_quit", func(in StageInput) bool {
		return in.RiskScore >= 60 ||
			in.daysSinceAtLeast(30) ||
			(in.Flags.NoRecentVisits && in.Flags.LargeGap) ||
			(in.Flags.RapidDecline && in.Flags.DecliningFrequency)
	}, StageAtRiskSilentQuit},
	{"disengaging", func(in StageInput) bool {
		return (in.Flags.RapidDecline || in.Flags.DecliningFrequency) &&
			in.Commitment < 45 && in.daysSinceAtLeast(14)
	}, StageEmotionalDisengagement},
	{"plateau", func(in StageInput) bool {
		return in.TenureDays >= 90 &&
			(in.Flags.DecliningFrequency || in.DecayVelocity < -0.3) &&
			in.Commitment >= 40 && in.Commitment < 65
	}, StagePlateauBoredomRisk},
	{"momentum", func(in StageInput) bool {
		return in.TenureDays >= 60 && in.Commitment >= 65 && in.VisitsLast30Days >= 4
	}, StageMomentumIdentity},
	{"forming_habit", func(in StageInput) bool {
		return in.TenureDays >= 14 && in.TenureDays < 90 && in.Commitment >= 40
	}, StageHabitFormation},
	{"early_member", func(in StageInput) bool {
		return in.TenureDays < 30 || in.Flags.NewMemberLowAttendance
	}, StageOnboardingVulnerability},
	{"committed_fallback", func(in StageInput) bool {
		return in.Commitment >= 50
	}, StageHabitFormation},
	{"long_absence_fallback", func(in StageInput) bool {
		return in.daysSinceAtLeast(21) && in.Commitment < 30
	}, StageAtRiskSilentQuit},
	{"drifting_fallback", func(in StageInput) bool {
		return in.daysSinceAtLeast(10)
	}, StageEmotionalDisengagement},
}

// ClassifyStage returns the lifecycle stage and the name of the rule that
// produced it.
func ClassifyStage(in StageInput) (Stage, string) {
	for _, r := range StageRules {
		if r.Match(in) {
			return r.Stage, r.Name
		}
	}
	return StageHabitFormation, "default"
}

// Profile bundles every signal computed for one member at one instant.
type Profile struct {
	Churn         ChurnResult      `json:"churn"`
	Commitment    CommitmentResult `json:"commitment"`
	DecayVelocity float64          `json:"decay_velocity"`
	Flags         Flags            `json:"flags"`
	Stage         Stage            `json:"stage"`
	StageRule     string           `json:"stage_rule"`
}

// MemberFacts are the non-visit member attributes the models use.
type MemberFacts struct {
	Status           string
	DistanceKm       *float64
	Age              *int
	EmploymentStatus string
	CampaignSent     bool
}

// Analyze runs the full engine for one member as of asOf.
func Analyze(h History, facts MemberFacts, asOf time.Time) Profile {
	c := CommitmentAsOf(h, asOf)
	tenure := c.TenureDays

	churn := ChurnRisk(ChurnInput{
		DaysSinceLastVisit: c.DaysSinceLastVisit,
		DaysSinceJoined:    &tenure,
		VisitsLast30Days:   c.VisitsLast30Days,
		DistanceKm:         facts.DistanceKm,
		Age:                facts.Age,
		EmploymentStatus:   facts.EmploymentStatus,
		CampaignSent:       facts.CampaignSent,
	})
	velocity := HabitDecayVelocity(h, asOf)
	flags := RiskFlags(c)

	stage, rule := ClassifyStage(StageInput{
		MemberStatus:       facts.Status,
		HasVisits:          c.TotalVisits > 0,
		TenureDays:         tenure,
		RiskScore:          churn.Score,
		DaysSinceLastVisit: c.DaysSinceLastVisit,
		Commitment:         c.Score,
		DecayVelocity:      velocity,
		VisitsLast30Days:   c.VisitsLast30Days,
		Flags:              flags,
	})

	return Profile{
		Churn:         churn,
		Commitment:    c,
		DecayVelocity: velocity,
		Flags:         flags,
		Stage:         stage,
		StageRule:     rule,
	}
}
