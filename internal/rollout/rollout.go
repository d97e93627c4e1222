// Package rollout decides whether a client lies inside a release's rollout
// cohort and computes time-ramped effective rollout percentages.
//
// Cohort membership is derived from a 32-bit string hash of the client
// identifier and the release tag. The hash must stay bit-exact across
// releases of this service: changing it re-shuffles every in-progress
// rollout fleet-wide.
package rollout

import (
	"math"
	"time"

	"github.com/otapush/acquisition/internal/models"
)

const (
	fullRollout     = 100
	millisPerMinute = 60_000
)

// HashString accumulates h = (h << 5) - h + codepoint over the string in
// 32-bit two's-complement arithmetic, wrapping on overflow. The empty string
// hashes to 0.
func HashString(s string) int32 {
	var h int32
	for _, r := range s {
		h = h<<5 - h + int32(r)
	}
	return h
}

// IsSelected reports whether the client identified by clientID falls inside
// the cohort of size percent for the release identified by tag. Membership is
// |hash(clientID + "-" + tag)| mod 100 < percent; the absolute value is taken
// in 64 bits so the minimum int32 hash is handled.
func IsSelected(clientID string, percent float64, tag string) bool {
	h := int64(HashString(clientID + "-" + tag))
	if h < 0 {
		h = -h
	}
	return float64(h%100) < percent
}

// IsUnfinished reports whether r names a rollout still in progress: present
// and not yet at 100 percent.
func IsUnfinished(r *int) bool {
	return r != nil && *r != fullRollout
}

// Effective computes the release's rollout percentage at time now, applying
// the optional hold-then-ramp schedule:
//
//   - no rollout, or rollout already finished: the nominal value (100 when absent)
//   - before the ramp anchor or inside the hold window: the base percentage
//   - during the ramp: base + (100-base) * progress, rounded to 3 decimals
//   - after the ramp: 100
//
// The result is clamped to [base, 100] and never decreases as now advances.
func Effective(release models.Release, now time.Time) float64 {
	if release.Rollout == nil {
		return fullRollout
	}
	if !IsUnfinished(release.Rollout) {
		return float64(*release.Rollout)
	}

	base := float64(*release.Rollout)
	if release.RolloutUploadTime == 0 {
		return base
	}

	holdMs := float64(release.RolloutHoldDurationMinutes) * millisPerMinute
	rampMs := float64(release.RolloutRampDurationMinutes) * millisPerMinute
	elapsed := float64(now.UnixMilli() - release.RolloutUploadTime)

	if (holdMs > 0 && elapsed < holdMs) || (holdMs == 0 && elapsed < 0) {
		return base
	}
	if rampMs <= 0 {
		return base
	}

	progress := (elapsed - holdMs) / rampMs
	if progress < 0 {
		progress = 0
	} else if progress > 1 {
		progress = 1
	}

	computed := base + (fullRollout-base)*progress
	computed = math.Round(computed*1000) / 1000
	if computed < base {
		computed = base
	}
	if computed > fullRollout {
		computed = fullRollout
	}
	return computed
}
