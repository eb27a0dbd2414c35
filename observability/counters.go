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

// Package observability exports a running Port's counters and sync
// state to anything outside the coordinator's single-goroutine
// ownership: a JSON-by-value endpoint, a Prometheus registry, or a
// status CLI. A Port's own coordinator.Counters are plain integers
// mutated only by the goroutine driving ProcessMessage/Tick; Counters
// in this package is the atomic, cross-goroutine-safe copy that a host
// refreshes once per tick and metrics code reads from freely.
package observability

import (
	"sync/atomic"

	"github.com/openptp/ptpcore/coordinator"
)

// Counters is a bounded, fixed-cardinality counter set. A mutex-guarded
// map makes sense when keys (e.g. PTP message types) are open-ended;
// this core's counter set is closed and known at compile time, so
// each field gets its own atomic.Int64 instead of a shared lock.
type Counters struct {
	messagesDropped      atomic.Int64
	validationsFailed    atomic.Int64
	bmcaSelections       atomic.Int64
	bmcaCandidateUpdates atomic.Int64
	bmcaLocalWins        atomic.Int64
	bmcaForeignWins      atomic.Int64
	bmcaPassiveWins      atomic.Int64
	offsetsComputed      atomic.Int64
	clockSteps           atomic.Int64
	frequencyAdjustments atomic.Int64

	offsetNs        atomic.Int64
	meanPathDelayNs atomic.Int64
	locked          atomic.Bool
}

// Snapshot is the plain-struct, alloc-free-on-read view of Counters
// used by both the JSON endpoint and the Prometheus collector.
type Snapshot struct {
	MessagesDropped      int64
	ValidationsFailed    int64
	BMCASelections       int64
	BMCACandidateUpdates int64
	BMCALocalWins        int64
	BMCAForeignWins      int64
	BMCAPassiveWins      int64
	OffsetsComputed      int64
	ClockSteps           int64
	FrequencyAdjustments int64
	OffsetNs             int64
	MeanPathDelayNs      int64
	Locked               bool
}

// Sync copies a Port's per-call counters into the atomic set. Call it
// from the same goroutine that owns the Port; afterward the atomics
// may be read from any goroutine.
func (c *Counters) Sync(pc coordinator.Counters, locked bool, offsetNs, meanPathDelayNs float64) {
	c.messagesDropped.Store(int64(pc.MessagesDropped))
	c.validationsFailed.Store(int64(pc.ValidationsFailed))
	c.bmcaSelections.Store(int64(pc.BMCASelections))
	c.bmcaCandidateUpdates.Store(int64(pc.BMCACandidateUpdates))
	c.bmcaLocalWins.Store(int64(pc.BMCALocalWins))
	c.bmcaForeignWins.Store(int64(pc.BMCAForeignWins))
	c.bmcaPassiveWins.Store(int64(pc.BMCAPassiveWins))
	c.offsetsComputed.Store(int64(pc.OffsetsComputed))
	c.clockSteps.Store(int64(pc.ClockSteps))
	c.frequencyAdjustments.Store(int64(pc.FrequencyAdjustments))
	c.offsetNs.Store(int64(offsetNs))
	c.meanPathDelayNs.Store(int64(meanPathDelayNs))
	c.locked.Store(locked)
}

// Snapshot reads every counter atomically into a plain struct.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		MessagesDropped:      c.messagesDropped.Load(),
		ValidationsFailed:    c.validationsFailed.Load(),
		BMCASelections:       c.bmcaSelections.Load(),
		BMCACandidateUpdates: c.bmcaCandidateUpdates.Load(),
		BMCALocalWins:        c.bmcaLocalWins.Load(),
		BMCAForeignWins:      c.bmcaForeignWins.Load(),
		BMCAPassiveWins:      c.bmcaPassiveWins.Load(),
		OffsetsComputed:      c.offsetsComputed.Load(),
		ClockSteps:           c.clockSteps.Load(),
		FrequencyAdjustments: c.frequencyAdjustments.Load(),
		OffsetNs:             c.offsetNs.Load(),
		MeanPathDelayNs:      c.meanPathDelayNs.Load(),
		Locked:               c.locked.Load(),
	}
}

// ToMap flattens a Snapshot into the dotted-key map shape stats.go's
// counters.toMap produces, for a plain net/http JSON endpoint.
func (s Snapshot) ToMap() map[string]int64 {
	locked := int64(0)
	if s.Locked {
		locked = 1
	}
	return map[string]int64{
		"messages.dropped":       s.MessagesDropped,
		"validations.failed":     s.ValidationsFailed,
		"bmca.selections":        s.BMCASelections,
		"bmca.candidate_updates": s.BMCACandidateUpdates,
		"bmca.local_wins":        s.BMCALocalWins,
		"bmca.foreign_wins":      s.BMCAForeignWins,
		"bmca.passive_wins":      s.BMCAPassiveWins,
		"offsets.computed":       s.OffsetsComputed,
		"clock.steps":            s.ClockSteps,
		"clock.frequency_adjustments": s.FrequencyAdjustments,
		"sync.offset_ns":         s.OffsetNs,
		"sync.mean_path_delay_ns": s.MeanPathDelayNs,
		"sync.locked":            locked,
	}
}
