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

// Package handler validates and pairs the two- and three-way message
// exchanges a port must track to produce a timestamp quadruple:
// Sync/Follow_Up, Delay_Req/Delay_Resp, and Pdelay_Req/Pdelay_Resp[/
// Pdelay_Resp_Follow_Up]. Pairing state is a small fixed-capacity
// table keyed by sequence ID, generalizing
// ptp/sptp/client/measurements.go's map-of-sequence-to-partial-sample
// pattern to a bounded array so the hot path never allocates.
package handler

import (
	"time"

	ptp "github.com/openptp/ptpcore/ptp/protocol"
)

// PendingCapacity bounds the in-flight exchange table. A port only
// ever has a handful of outstanding Sync/Pdelay exchanges at once
// (one per sync interval until the partner message arrives), so a
// small fixed table covers real traffic without allocation.
const PendingCapacity = 8

// syncSlot holds one Sync exchange's state until its Follow_Up (for a
// two-step master) arrives, or is already complete for a one-step
// master.
type syncSlot struct {
	used       bool
	seq        uint16
	rx         time.Time // local wall-clock arrival, for grace-window aging
	t1         ptp.Timestamp
	t2         ptp.Timestamp
	correction ptp.Correction
	complete   bool
}

// SyncPair is a completed Sync/Follow_Up exchange ready for the offset
// calculator.
type SyncPair struct {
	T1         ptp.Timestamp
	T2         ptp.Timestamp
	Correction ptp.Correction
}

// SyncPairer tracks in-flight Sync exchanges for one port.
type SyncPairer struct {
	slots           [PendingCapacity]syncSlot
	graceWindow     time.Duration
	LateRejected    uint64
	OverflowDropped uint64
}

// NewSyncPairer returns a pairer that rejects a Follow_Up arriving
// more than graceWindow after its Sync.
func NewSyncPairer(graceWindow time.Duration) *SyncPairer {
	return &SyncPairer{graceWindow: graceWindow}
}

func (p *SyncPairer) findOrAlloc(seq uint16) (*syncSlot, bool) {
	for i := range p.slots {
		if p.slots[i].used && p.slots[i].seq == seq {
			return &p.slots[i], true
		}
	}
	for i := range p.slots {
		if !p.slots[i].used {
			p.slots[i] = syncSlot{used: true, seq: seq}
			return &p.slots[i], false
		}
	}
	// table full: evict the oldest slot by arrival time.
	oldest := 0
	for i := 1; i < len(p.slots); i++ {
		if p.slots[i].rx.Before(p.slots[oldest].rx) {
			oldest = i
		}
	}
	p.OverflowDropped++
	p.slots[oldest] = syncSlot{used: true, seq: seq}
	return &p.slots[oldest], false
}

// OnSyncOneStep records a one-step Sync, whose OriginTimestamp is
// already the precise transmission time, and immediately returns the
// completed pair.
func (p *SyncPairer) OnSyncOneStep(seq uint16, t1, t2 ptp.Timestamp, correction ptp.Correction, now time.Time) SyncPair {
	slot, _ := p.findOrAlloc(seq)
	slot.t1 = t1
	slot.t2 = t2
	slot.correction = correction
	slot.rx = now
	slot.complete = true
	slot.used = false // consumed immediately, free the slot
	return SyncPair{T1: t1, T2: t2, Correction: correction}
}

// OnSyncTwoStep records a two-step Sync's reception timestamp and
// correctionField, awaiting the matching Follow_Up for T1.
func (p *SyncPairer) OnSyncTwoStep(seq uint16, t2 ptp.Timestamp, correction ptp.Correction, now time.Time) {
	slot, _ := p.findOrAlloc(seq)
	slot.t2 = t2
	slot.correction = correction
	slot.rx = now
}

// OnFollowUp pairs a Follow_Up with its Sync. Returns ok=false if no
// matching Sync was seen (rejected: arrived before its Sync, or the
// Sync's slot already aged out) or if the grace window elapsed since
// the Sync's arrival (late Follow_Up).
func (p *SyncPairer) OnFollowUp(seq uint16, preciseOrigin ptp.Timestamp, followUpCorrection ptp.Correction, now time.Time) (SyncPair, bool) {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.used || s.seq != seq {
			continue
		}
		if p.graceWindow > 0 && now.Sub(s.rx) > p.graceWindow {
			p.LateRejected++
			s.used = false
			return SyncPair{}, false
		}
		pair := SyncPair{
			T1:         preciseOrigin,
			T2:         s.t2,
			Correction: addCorrection(s.correction, followUpCorrection),
		}
		s.used = false
		return pair, true
	}
	return SyncPair{}, false
}

func addCorrection(a, b ptp.Correction) ptp.Correction {
	if a.TooBig() || b.TooBig() {
		return ptp.Correction(0x7fffffffffffffff)
	}
	sum := int64(a) + int64(b)
	if sum < 0 {
		return ptp.Correction(0x7fffffffffffffff)
	}
	return ptp.Correction(sum)
}
