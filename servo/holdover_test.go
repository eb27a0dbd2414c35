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

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHoldoverFreezesFrequency(t *testing.T) {
	h := NewHoldoverController(time.Minute)
	now := time.Now()
	h.Enter(now, 123.5)
	require.True(t, h.Active())
	require.Equal(t, 123.5, h.FrozenFrequency())

	// re-entering does not slide the frozen value
	h.Enter(now.Add(time.Second), 999)
	require.Equal(t, 123.5, h.FrozenFrequency())
}

func TestHoldoverDegradesAfterGraceWindow(t *testing.T) {
	h := NewHoldoverController(10 * time.Second)
	now := time.Now()
	h.Enter(now, 0)
	require.False(t, h.Degraded(now.Add(5*time.Second)))
	require.True(t, h.Degraded(now.Add(11*time.Second)))
}

func TestHoldoverExit(t *testing.T) {
	h := NewHoldoverController(time.Minute)
	h.Enter(time.Now(), 1)
	h.Exit()
	require.False(t, h.Active())
}

func TestLockTrackerRequiresConsecutiveSamples(t *testing.T) {
	l := NewLockTracker(100, 500, 3)
	require.False(t, l.Observe(50))
	require.False(t, l.Observe(50))
	require.True(t, l.Observe(50))
}

func TestLockTrackerHysteresis(t *testing.T) {
	l := NewLockTracker(100, 500, 2)
	l.Observe(50)
	l.Observe(50)
	require.True(t, l.Locked())

	// a sample between lock and unlock thresholds should not drop lock
	require.True(t, l.Observe(300))
	// exceeding unlock threshold does drop lock
	require.False(t, l.Observe(600))
}

func TestLockTrackerOutOfRangeResetsConsecutiveCount(t *testing.T) {
	l := NewLockTracker(100, 500, 2)
	l.Observe(50)
	l.Observe(200) // resets the streak, still below unlock (irrelevant while unlocked)
	require.False(t, l.Locked())
	require.False(t, l.Observe(50))
	require.True(t, l.Observe(50))
}
