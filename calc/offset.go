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

// Package calc implements the E2E and P2P offset/delay formulas over
// scaled-nanosecond (2^-16 ns) fixed-point arithmetic, matching the
// shape of ptp/sptp/client/measurements.go's latest() but staying in
// protocol.TimeInterval/Correction units end to end instead of
// time.Duration, so intermediate values never lose the sub-nanosecond
// precision the wire format carries.
package calc

import (
	ptp "github.com/openptp/ptpcore/ptp/protocol"
)

// clampBound is the maximum magnitude an offsetFromMaster may carry
// after clamping: |offset| <= 2^46 scaled units.
const clampBound = int64(1) << 46

// diffNanoseconds returns a-b in plain nanoseconds. Timestamps in a
// single exchange are always close together (sub-second in practice),
// so this never approaches int64 overflow even though the absolute
// seconds fields are full Unix epoch values.
func diffNanoseconds(a, b ptp.Timestamp) int64 {
	ds := int64(a.Seconds.Seconds()) - int64(b.Seconds.Seconds())
	dn := int64(a.Nanoseconds) - int64(b.Nanoseconds)
	return ds*1_000_000_000 + dn
}

// diffScaled returns a-b as scaled nanoseconds (TimeInterval units).
func diffScaled(a, b ptp.Timestamp) int64 {
	return diffNanoseconds(a, b) << 16
}

// divRound2 divides x by two. With banker enabled, a remainder exactly
// half a scaled unit rounds to the nearest even result instead of
// truncating toward zero, avoiding the DC bias that truncation
// introduces over long averages.
func divRound2(x int64, banker bool) int64 {
	q := x / 2
	if x%2 == 0 || !banker {
		return q
	}
	if q%2 != 0 {
		if x > 0 {
			return q + 1
		}
		return q - 1
	}
	return q
}

// clamp bounds v to +-clampBound, reporting whether clamping occurred.
func clamp(v int64) (int64, bool) {
	if v > clampBound {
		return clampBound, true
	}
	if v < -clampBound {
		return -clampBound, true
	}
	return v, false
}

// E2EResult is the outcome of one Delay Request-Response computation.
type E2EResult struct {
	OffsetFromMaster ptp.TimeInterval
	MeanPathDelay    ptp.TimeInterval
	Clamped          bool
	OrderingViolation bool
}

// E2E computes offsetFromMaster and meanPathDelay from the four
// timestamps of a Sync/Follow_Up + Delay_Req/Delay_Resp exchange
// (IEEE 1588-2019 §11.3). accumulatedCorrection is the saturating sum
// of the Sync, Follow_Up, and Delay_Resp correctionFields.
func E2E(t1, t2, t3, t4 ptp.Timestamp, accumulatedCorrection ptp.Correction, banker bool) E2EResult {
	s2c := diffScaled(t2, t1) // T2 - T1
	c2s := diffScaled(t4, t3) // T4 - T3

	ordering := s2c < 0 || c2s < 0

	meanPathDelay := divRound2(s2c+c2s, banker)
	offset := divRound2(s2c-c2s, banker) - int64(accumulatedCorrection)

	offset, clamped := clamp(offset)

	return E2EResult{
		OffsetFromMaster:  ptp.TimeInterval(offset),
		MeanPathDelay:     ptp.TimeInterval(meanPathDelay),
		Clamped:           clamped,
		OrderingViolation: ordering,
	}
}

// P2PResult is the outcome of one Peer Delay computation.
type P2PResult struct {
	PeerMeanPathDelay ptp.TimeInterval
	OrderingViolation bool
}

// P2P computes peerMeanPathDelay from a Pdelay_Req/Pdelay_Resp[/Follow_Up]
// exchange (IEEE 1588-2019 §11.4). t1 is the local Pdelay_Req
// transmission, t2 the peer's reception, t3 the peer's Pdelay_Resp
// transmission, t4 the local reception of Pdelay_Resp.
func P2P(t1, t2, t3, t4 ptp.Timestamp, pdelayCorrections ptp.Correction, banker bool) P2PResult {
	c4s1 := diffScaled(t4, t1) // t4 - t1
	c3s2 := diffScaled(t3, t2) // t3 - t2

	ordering := c4s1 < 0 || c3s2 < 0

	delay := divRound2(c4s1-c3s2, banker) - int64(pdelayCorrections)

	return P2PResult{
		PeerMeanPathDelay: ptp.TimeInterval(delay),
		OrderingViolation: ordering,
	}
}

// AccumulateResidence saturating-adds a residence time (egress-ingress)
// into a running correctionField, for hosts deployed as (or alongside)
// a transparent clock. Saturates at Correction's TooBig sentinel rather
// than wrapping.
func AccumulateResidence(cf ptp.Correction, ingress, egress ptp.Timestamp) ptp.Correction {
	if cf.TooBig() {
		return cf
	}
	residence := diffScaled(egress, ingress)
	sum := int64(cf) + residence
	if sum < 0 || sum >= 0x7fffffffffffffff {
		return ptp.Correction(0x7fffffffffffffff)
	}
	return ptp.Correction(sum)
}
