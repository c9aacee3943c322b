// internal/service/guardrail_service.go
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/unclebandit/retention-engine/internal/metrics"
	"github.com/unclebandit/retention-engine/internal/model"
	"github.com/unclebandit/retention-engine/internal/repository"
)

type DecisionOutcome string

const (
	DecisionAllow DecisionOutcome = "allow"
	DecisionDefer DecisionOutcome = "defer"
	DecisionDeny  DecisionOutcome = "deny"
)

// Denial reasons.
const (
	ReasonDoNotContact = "do not contact"
	ReasonNoConsent    = "no consent for channel"
	ReasonNoAddress    = "no address for channel"
	ReasonWeeklyCap    = "weekly cap reached"
	ReasonCooldown     = "cooldown active"
	ReasonQuietHours   = "quiet hours"
)

const weeklyCapWindow = 7 * 24 * time.Hour

// statuses that count against the weekly cap
var capStatuses = []model.InterventionStatus{model.StatusSent, model.StatusDelivered, model.StatusFailed}

// Decision is the guardrail verdict for one member, play and channel.
// ScheduledAt is set only for DecisionDefer.
type Decision struct {
	Outcome     DecisionOutcome `json:"outcome"`
	Reason      string          `json:"reason,omitempty"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
}

func (d Decision) Denied() bool { return d.Outcome == DecisionDeny }

// ChannelScoped reports whether the denial concerns only this channel, so
// another channel of the same play may still be tried.
func (d Decision) ChannelScoped() bool {
	return d.Denied() && (d.Reason == ReasonNoConsent || d.Reason == ReasonNoAddress)
}

// QuietHours is a daily local window in minutes since midnight. A window with
// start > end wraps past midnight; start == end is no window.
type QuietHours struct {
	start, end int
	enabled    bool
}

// ParseQuietHours parses "HH:MM" bounds. Both empty means no quiet hours.
func ParseQuietHours(start, end string) (QuietHours, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return QuietHours{}, nil
	}
	s, err := parseClock(start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours end: %w", err)
	}
	return QuietHours{start: s, end: e, enabled: s != e}, nil
}

func parseClock(v string) (int, error) {
	h, m, ok := strings.Cut(v, ":")
	if !ok {
		return 0, fmt.Errorf("%q is not HH:MM", v)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("%q has an invalid hour", v)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("%q has an invalid minute", v)
	}
	return hh*60 + mm, nil
}

// Contains reports whether the wall clock of local falls inside the window.
func (q QuietHours) Contains(local time.Time) bool {
	if !q.enabled {
		return false
	}
	m := local.Hour()*60 + local.Minute()
	if q.start < q.end {
		return m >= q.start && m < q.end
	}
	return m >= q.start || m < q.end
}

// NextAllowed returns the next instant after now at which the window ends,
// computed on the civil calendar of loc so DST shifts are respected.
func (q QuietHours) NextAllowed(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	h, m := q.end/60, q.end%60
	next := time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, h, m, 0, 0, loc)
	}
	return next
}

// GuardrailService applies the contact policy in a fixed order: do-not-contact,
// channel consent, quiet hours, weekly cap, cooldown. Quiet hours defer rather
// than deny, and the later checks still run so a deferral never hides a cap or
// cooldown denial.
type GuardrailService struct {
	Interventions repository.InterventionRepositoryInterface
}

func (g *GuardrailService) Evaluate(ctx context.Context, member *model.Member, play *model.Play, ch model.Channel, loc *time.Location, now time.Time) (Decision, error) {
	d, err := g.evaluate(ctx, member, play, ch, loc, now)
	if err == nil {
		metrics.ObserveGuardrail(string(d.Outcome), d.Reason)
	}
	return d, err
}

// evaluate keeps checking cap and cooldown after a quiet hours deferral so a
// deferred candidate can never become a second pending intervention.
func (g *GuardrailService) evaluate(ctx context.Context, member *model.Member, play *model.Play, ch model.Channel, loc *time.Location, now time.Time) (Decision, error) {
	if reason := contactBlock(member, ch); reason != "" {
		return deny(reason), nil
	}

	decision := Decision{Outcome: DecisionAllow}
	qh, err := ParseQuietHours(play.QuietHoursStart, play.QuietHoursEnd)
	if err != nil {
		return Decision{}, fmt.Errorf("play %s: %w", play.ID, err)
	}
	if qh.Contains(now.In(loc)) {
		at := qh.NextAllowed(now, loc)
		decision = Decision{Outcome: DecisionDefer, Reason: ReasonQuietHours, ScheduledAt: &at}
	}

	if play.MaxPerWeek > 0 {
		sent, err := g.Interventions.CountByMemberStatusesSince(ctx, member.TenantID, member.ID, capStatuses, now.Add(-weeklyCapWindow))
		if err != nil {
			return Decision{}, fmt.Errorf("count recent sends: %w", err)
		}
		if sent >= play.MaxPerWeek {
			return deny(ReasonWeeklyCap), nil
		}
	}

	active, err := g.Interventions.ExistsActiveForPlayMemberSince(ctx, play.ID, member.ID, now.AddDate(0, 0, -play.CooldownDays))
	if err != nil {
		return Decision{}, fmt.Errorf("check cooldown: %w", err)
	}
	if active {
		return deny(ReasonCooldown), nil
	}

	return decision, nil
}

func deny(reason string) Decision {
	return Decision{Outcome: DecisionDeny, Reason: reason}
}

// contactBlock returns the reason member cannot be reached on ch, or "".
func contactBlock(member *model.Member, ch model.Channel) string {
	switch {
	case member.DoNotContact:
		return ReasonDoNotContact
	case !member.HasConsent(ch):
		return ReasonNoConsent
	case member.Address(ch) == "":
		return ReasonNoAddress
	}
	return ""
}
