package session

import (
	"fmt"
	"time"
)

// Tier maps a remaining-time threshold to a warning level. A tier fires
// when the remaining time is at or below its threshold, so boundaries
// belong to the more urgent tier.
type Tier struct {
	Threshold time.Duration
	Level     WarningLevel
}

// TierPolicy classifies remaining session time into a warning level by
// walking its tiers from most to least urgent. The classification is a
// pure function of the remaining time; there is no hysteresis, so a
// level can move in either direction between polls.
type TierPolicy struct {
	name  string
	tiers []Tier
}

// NewTierPolicy builds a policy from tiers ordered most-urgent first.
// Thresholds must be strictly ascending and levels strictly descending
// in severity; LevelNone is implicit above the last threshold and may
// not appear as a tier.
func NewTierPolicy(name string, tiers ...Tier) (TierPolicy, error) {
	if len(tiers) == 0 {
		return TierPolicy{}, fmt.Errorf("tier policy %q: at least one tier required", name)
	}
	for i, t := range tiers {
		if t.Threshold <= 0 {
			return TierPolicy{}, fmt.Errorf("tier policy %q: tier %d threshold must be positive", name, i)
		}
		if t.Level == LevelNone {
			return TierPolicy{}, fmt.Errorf("tier policy %q: tier %d may not use level none", name, i)
		}
		if i > 0 {
			if t.Threshold <= tiers[i-1].Threshold {
				return TierPolicy{}, fmt.Errorf("tier policy %q: thresholds must be strictly ascending", name)
			}
			if t.Level >= tiers[i-1].Level {
				return TierPolicy{}, fmt.Errorf("tier policy %q: severity must decrease as thresholds grow", name)
			}
		}
	}
	copied := make([]Tier, len(tiers))
	copy(copied, tiers)
	return TierPolicy{name: name, tiers: copied}, nil
}

// ServerPollPolicy returns the tier table for server-truth polling:
// critical at one minute, prominent at five, subtle at ten.
func ServerPollPolicy() TierPolicy {
	return TierPolicy{
		name: "server",
		tiers: []Tier{
			{Threshold: time.Minute, Level: LevelCritical},
			{Threshold: 5 * time.Minute, Level: LevelProminent},
			{Threshold: 10 * time.Minute, Level: LevelSubtle},
		},
	}
}

// PresenterPolicy returns the tighter tier table presenters use for
// locally computed countdowns: critical at thirty seconds, prominent at
// two minutes, subtle at five.
func PresenterPolicy() TierPolicy {
	return TierPolicy{
		name: "presenter",
		tiers: []Tier{
			{Threshold: 30 * time.Second, Level: LevelCritical},
			{Threshold: 2 * time.Minute, Level: LevelProminent},
			{Threshold: 5 * time.Minute, Level: LevelSubtle},
		},
	}
}

// Classify returns the warning level for the given remaining time.
// Zero or negative remaining classifies as the most urgent tier.
func (p TierPolicy) Classify(remaining time.Duration) WarningLevel {
	for _, t := range p.tiers {
		if remaining <= t.Threshold {
			return t.Level
		}
	}
	return LevelNone
}

// Name identifies the policy in logs and config.
func (p TierPolicy) Name() string { return p.name }

// Window returns the widest threshold, the span over which any warning
// is shown. Presenters use it as the denominator for progress bars.
func (p TierPolicy) Window() time.Duration {
	if len(p.tiers) == 0 {
		return 0
	}
	return p.tiers[len(p.tiers)-1].Threshold
}
