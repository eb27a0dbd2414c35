/*
Copyright (c) ptpcore authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package servo

import "time"

// HoldoverController tracks a PiServo's holdover episode: the grace
// window during which Sync updates have ceased but the servo keeps
// steering the clock at its last known-good frequency. It changes no
// PiServo state itself; it only records the frozen frequency and when
// holdover began.
type HoldoverController struct {
	active      bool
	frozenFreq  float64
	since       time.Time
	graceWindow time.Duration
}

// NewHoldoverController returns a controller that is not yet active.
// graceWindow bounds how long holdover may run before it is considered
// degraded.
func NewHoldoverController(graceWindow time.Duration) *HoldoverController {
	return &HoldoverController{graceWindow: graceWindow}
}

// Enter freezes the servo's current frequency output. Re-entering while
// already active is a no-op: the frozen value does not slide forward
// every tick Sync stays absent.
func (h *HoldoverController) Enter(now time.Time, currentFreq float64) {
	if h.active {
		return
	}
	h.active = true
	h.frozenFreq = currentFreq
	h.since = now
}

// Exit clears holdover, called once Sync resumes and a fresh sample has
// been accepted.
func (h *HoldoverController) Exit() {
	h.active = false
}

// Active reports whether the servo is currently in holdover.
func (h *HoldoverController) Active() bool {
	return h.active
}

// FrozenFrequency returns the frequency adjustment to keep applying
// while in holdover.
func (h *HoldoverController) FrozenFrequency() float64 {
	return h.frozenFreq
}

// Degraded reports whether holdover has outlasted its grace window, at
// which point the caller must demand a state-machine fallback to
// Uncalibrated: after extended absence, synchronization is marked
// degraded.
func (h *HoldoverController) Degraded(now time.Time) bool {
	return h.active && h.graceWindow > 0 && now.Sub(h.since) > h.graceWindow
}

// LockTracker implements lock/unlock hysteresis: Locked declares
// after K consecutive samples below
// lockThresholdNs; Unlocked declares as soon as a sample exceeds
// unlockThresholdNs (unlockThresholdNs > lockThresholdNs). This is
// independent of PiServoFilter's spike/reset logic, which governs
// outlier rejection rather than the lock state exposed to the port
// state machine and on_sync_status callback.
type LockTracker struct {
	lockThresholdNs   int64
	unlockThresholdNs int64
	requiredSamples   int
	consecutive       int
	locked            bool
}

// NewLockTracker returns a tracker starting Unlocked.
func NewLockTracker(lockThresholdNs, unlockThresholdNs int64, requiredSamples int) *LockTracker {
	return &LockTracker{
		lockThresholdNs:   lockThresholdNs,
		unlockThresholdNs: unlockThresholdNs,
		requiredSamples:   requiredSamples,
	}
}

// Observe folds in one offset sample (nanoseconds) and returns the
// resulting lock state.
func (l *LockTracker) Observe(offsetNs int64) bool {
	abs := offsetNs
	if abs < 0 {
		abs = -abs
	}

	if l.locked {
		if abs > l.unlockThresholdNs {
			l.locked = false
			l.consecutive = 0
		}
		return l.locked
	}

	if abs <= l.lockThresholdNs {
		l.consecutive++
		if l.consecutive >= l.requiredSamples {
			l.locked = true
		}
	} else {
		l.consecutive = 0
	}
	return l.locked
}

// Locked returns the current lock state without observing a sample.
func (l *LockTracker) Locked() bool {
	return l.locked
}

// Reset returns the tracker to Unlocked with no accumulated samples,
// used when the port enters Master or PreMaster (portsm.ResetsServo).
func (l *LockTracker) Reset() {
	l.locked = false
	l.consecutive = 0
}
