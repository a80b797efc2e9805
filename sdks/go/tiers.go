package sessionvigil

import (
	"fmt"
	"time"
)

// Presenter-local tier thresholds. These are tighter than the sidecar's
// server-truth table: a presenter ticking its own countdown between
// polls escalates later, so a clock skewed ahead of the sidecar does not
// flash critical warnings early. A tier fires when the remaining time is
// at or below its threshold.
const (
	// CriticalThreshold is the last-chance warning boundary.
	CriticalThreshold = 30 * time.Second

	// ProminentThreshold is the clearly-visible warning boundary.
	ProminentThreshold = 2 * time.Minute

	// SubtleThreshold is the early-hint boundary.
	SubtleThreshold = 5 * time.Minute

	// WarningWindow is the span over which any warning is shown; use it
	// as the denominator when drawing a countdown progress bar.
	WarningWindow = SubtleThreshold
)

// ClassifyLocal maps locally computed remaining time to a warning level
// using the presenter tier table. Zero or negative remaining classifies
// as critical. Prefer the sidecar's reported level when a fresh state is
// at hand; classify locally only for ticks between polls.
func ClassifyLocal(remaining time.Duration) WarningLevel {
	switch {
	case remaining <= CriticalThreshold:
		return LevelCritical
	case remaining <= ProminentThreshold:
		return LevelProminent
	case remaining <= SubtleThreshold:
		return LevelSubtle
	default:
		return LevelNone
	}
}

// FormatRemaining renders a countdown as M:SS, such as "4:05" or
// "12:30". Negative durations clamp to "0:00"; partial seconds are
// dropped so the clock never shows time the user no longer has.
func FormatRemaining(remaining time.Duration) string {
	if remaining < 0 {
		remaining = 0
	}
	total := int(remaining / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Progress returns the remaining time as a percentage of the given
// window, clamped to [0, 100]. A non-positive window yields 0.
func Progress(remaining, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	pct := float64(remaining) / float64(window) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
