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

package handler

import (
	"time"

	ptp "github.com/openptp/ptpcore/ptp/protocol"
)

// DelayPairer tracks the single outstanding Delay_Req this port has
// sent toward its master. Unlike Sync, a port only ever has one
// Delay_Req in flight (it waits for Delay_Resp, or a timeout, before
// sending the next), so one slot suffices.
type DelayPairer struct {
	pending          bool
	seq              uint16
	t3               ptp.Timestamp
	SequenceMismatch uint64
}

// OnDelayReqSent records the local transmit timestamp of an outgoing
// Delay_Req.
func (d *DelayPairer) OnDelayReqSent(seq uint16, t3 ptp.Timestamp) {
	d.pending = true
	d.seq = seq
	d.t3 = t3
}

// DelayPair is a completed Delay_Req/Delay_Resp exchange.
type DelayPair struct {
	T3         ptp.Timestamp
	T4         ptp.Timestamp
	Correction ptp.Correction
}

// OnDelayResp pairs an incoming Delay_Resp with the pending Delay_Req.
// Returns ok=false on sequence mismatch or an unexpected Delay_Resp
// (a SequenceMismatch fault: Delay_Resp identity or sequence
// mismatch, message rejected). requestingPort must match the local
// port identity the master echoes back; mismatches are also rejected.
func (d *DelayPairer) OnDelayResp(seq uint16, requestingPort, localPort ptp.PortIdentity, t4 ptp.Timestamp, correction ptp.Correction) (DelayPair, bool) {
	if !d.pending || seq != d.seq || requestingPort != localPort {
		d.SequenceMismatch++
		return DelayPair{}, false
	}
	d.pending = false
	return DelayPair{T3: d.t3, T4: t4, Correction: correction}, true
}

// pdelaySlot holds one Pdelay_Req exchange awaiting Pdelay_Resp and
// (for a two-step peer) Pdelay_Resp_Follow_Up.
type pdelaySlot struct {
	used         bool
	seq          uint16
	rx           time.Time
	t1           ptp.Timestamp
	t2           ptp.Timestamp
	t4           ptp.Timestamp
	needFollowUp bool
}

// PdelayPair is a completed Peer Delay exchange.
type PdelayPair struct {
	T1, T2, T3, T4 ptp.Timestamp
}

// PdelayPairer tracks in-flight Pdelay exchanges for one port.
type PdelayPairer struct {
	slots           [PendingCapacity]pdelaySlot
	graceWindow     time.Duration
	LateRejected    uint64
	OverflowDropped uint64
}

// NewPdelayPairer returns a pairer rejecting a Pdelay_Resp_Follow_Up
// arriving more than graceWindow after its Pdelay_Resp.
func NewPdelayPairer(graceWindow time.Duration) *PdelayPairer {
	return &PdelayPairer{graceWindow: graceWindow}
}

func (p *PdelayPairer) findOrAlloc(seq uint16) *pdelaySlot {
	for i := range p.slots {
		if p.slots[i].used && p.slots[i].seq == seq {
			return &p.slots[i]
		}
	}
	for i := range p.slots {
		if !p.slots[i].used {
			p.slots[i] = pdelaySlot{used: true, seq: seq}
			return &p.slots[i]
		}
	}
	oldest := 0
	for i := 1; i < len(p.slots); i++ {
		if p.slots[i].rx.Before(p.slots[oldest].rx) {
			oldest = i
		}
	}
	p.OverflowDropped++
	p.slots[oldest] = pdelaySlot{used: true, seq: seq}
	return &p.slots[oldest]
}

// OnPdelayReqSent records the local transmit timestamp of an outgoing
// Pdelay_Req.
func (p *PdelayPairer) OnPdelayReqSent(seq uint16, t1 ptp.Timestamp, now time.Time) {
	slot := p.findOrAlloc(seq)
	slot.t1 = t1
	slot.rx = now
}

// OnPdelayRespOneStep pairs a one-step Pdelay_Resp (which carries the
// peer's t3 as RequestReceiptTimestamp is t2, and the precise response
// origin is implicit) and completes the exchange immediately.
func (p *PdelayPairer) OnPdelayRespOneStep(seq uint16, t2, t3, t4 ptp.Timestamp) (PdelayPair, bool) {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.used || s.seq != seq {
			continue
		}
		s.used = false
		return PdelayPair{T1: s.t1, T2: t2, T3: t3, T4: t4}, true
	}
	return PdelayPair{}, false
}

// OnPdelayRespTwoStep records a two-step Pdelay_Resp's t2 (request
// receipt timestamp) and the local t4, awaiting the Pdelay_Resp_Follow_Up
// for t3.
func (p *PdelayPairer) OnPdelayRespTwoStep(seq uint16, t2, t4 ptp.Timestamp, now time.Time) {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.used || s.seq != seq {
			continue
		}
		s.t2 = t2
		s.t4 = t4
		s.needFollowUp = true
		s.rx = now
		return
	}
}

// OnPdelayRespFollowUp pairs a Pdelay_Resp_Follow_Up with its pending
// two-step Pdelay_Resp, completing the exchange.
func (p *PdelayPairer) OnPdelayRespFollowUp(seq uint16, t3 ptp.Timestamp, now time.Time) (PdelayPair, bool) {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.used || s.seq != seq || !s.needFollowUp {
			continue
		}
		if p.graceWindow > 0 && now.Sub(s.rx) > p.graceWindow {
			p.LateRejected++
			s.used = false
			return PdelayPair{}, false
		}
		t4 := s.t4
		s.used = false
		return PdelayPair{T1: s.t1, T2: s.t2, T3: t3, T4: t4}, true
	}
	return PdelayPair{}, false
}
