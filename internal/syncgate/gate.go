// internal/syncgate/gate.go
package syncgate

import (
	"math"
	"time"
)

// ShouldSync reports whether enough time has passed since the last sync for a
// new one to run. A nil or zero lastSyncAt always allows a sync. The current
// time is injected so gate decisions are deterministic in tests.
func ShouldSync(lastSyncAt *time.Time, cacheDurationMinutes int, now time.Time) bool {
	if lastSyncAt == nil || lastSyncAt.IsZero() {
		return true
	}
	elapsed := now.Sub(*lastSyncAt)
	return elapsed >= time.Duration(cacheDurationMinutes)*time.Minute
}

// MinutesUntilNextSync returns how many whole minutes remain before the gate
// opens, rounded up. Zero means a sync is allowed right now.
func MinutesUntilNextSync(lastSyncAt *time.Time, cacheDurationMinutes int, now time.Time) int {
	if lastSyncAt == nil || lastSyncAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(*lastSyncAt)
	remaining := time.Duration(cacheDurationMinutes)*time.Minute - elapsed
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}
