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

// Package bmca implements the Best Master Clock Algorithm: priority
// vector construction, the 8-field lexicographic comparison, and the
// recommended-state decision that the port state machine consumes.
package bmca

import (
	ptp "github.com/openptp/ptpcore/ptp/protocol"

	"github.com/openptp/ptpcore/dataset"
)

// Result is the outcome of comparing two priority vectors.
type Result int8

// Comparison outcomes, ordered the same way bmc.go's ComparisonResult
// is: magnitude 2 means the sender port identity tiebreak decided it,
// magnitude 1 means the data compare or a stepsRemoved difference of
// more than one decided it.
const (
	ABetterTopo Result = 2
	ABetter     Result = 1
	Equal       Result = 0
	BBetter     Result = -1
	BBetterTopo Result = -2
)

// Vector is a priority vector: the 8-field tuple IEEE 1588-2019 Table 3
// orders GM candidates by. Built from either a received Announce or
// the local clock's own data sets.
type Vector struct {
	GrandmasterIdentity     ptp.ClockIdentity
	GrandmasterPriority1    uint8
	GrandmasterClockQuality ptp.ClockQuality
	GrandmasterPriority2    uint8
	StepsRemoved            uint16
	SenderPortIdentity      ptp.PortIdentity
	ReceiverPortIdentity    ptp.PortIdentity
}

// VectorFromAnnounce builds a priority vector from a received Announce
// message, as seen at the receiving port identified by receiver.
func VectorFromAnnounce(body ptp.AnnounceBody, sender ptp.PortIdentity, receiver ptp.PortIdentity) Vector {
	return Vector{
		GrandmasterIdentity:     body.GrandmasterIdentity,
		GrandmasterPriority1:    body.GrandmasterPriority1,
		GrandmasterClockQuality: body.GrandmasterClockQuality,
		GrandmasterPriority2:    body.GrandmasterPriority2,
		StepsRemoved:            body.StepsRemoved,
		SenderPortIdentity:      sender,
		ReceiverPortIdentity:    receiver,
	}
}

// VectorFromLocal builds the priority vector a port advertises for
// itself, i.e. the vector used when the local clock is its own best
// master (parentDS already reset to self).
func VectorFromLocal(d *dataset.Set) Vector {
	return Vector{
		GrandmasterIdentity:     d.Default.ClockIdentity,
		GrandmasterPriority1:    d.Default.Priority1,
		GrandmasterClockQuality: d.Default.ClockQuality,
		GrandmasterPriority2:    d.Default.Priority2,
		StepsRemoved:            0,
		SenderPortIdentity:      d.Port.PortIdentity,
		ReceiverPortIdentity:    d.Port.PortIdentity,
	}
}

// comparePortIdentity orders two port identities by clock identity
// then port number, compared as unsigned values the whole way through
// (IEEE 1588-2019 §9.3.4's "compared lexicographically as unsigned
// integers"): the sign of the returned value is all callers use, not
// its magnitude, so a straight less-than/greater-than avoids the
// signed-overflow a subtraction would hit whenever the two identities
// straddle the 0x8000000000000000 boundary.
func comparePortIdentity(a, b ptp.PortIdentity) int64 {
	switch {
	case a.ClockIdentity < b.ClockIdentity:
		return -1
	case a.ClockIdentity > b.ClockIdentity:
		return 1
	case a.PortNumber < b.PortNumber:
		return -1
	case a.PortNumber > b.PortNumber:
		return 1
	default:
		return 0
	}
}

// compareTopology breaks a tie between two vectors with the same
// grandmaster by comparing steps removed and then sender port identity
// (IEEE 1588-2019 §9.3.4, data set comparison algorithm part 2).
func compareTopology(a, b Vector) Result {
	if a.StepsRemoved+1 < b.StepsRemoved {
		return ABetter
	}
	if b.StepsRemoved+1 < a.StepsRemoved {
		return BBetter
	}

	diff := comparePortIdentity(a.SenderPortIdentity, b.SenderPortIdentity)
	switch {
	case diff < 0:
		return ABetterTopo
	case diff > 0:
		return BBetterTopo
	default:
		diff = comparePortIdentity(a.ReceiverPortIdentity, b.ReceiverPortIdentity)
		if diff < 0 {
			return ABetterTopo
		}
		if diff > 0 {
			return BBetterTopo
		}
		return Equal
	}
}

// Compare implements the full data set comparison algorithm, following
// the exact field order IEEE 1588-2019 Figure 27 specifies:
// priority1, clockClass, clockAccuracy, offsetScaledLogVariance,
// priority2, grandmasterIdentity, then topology (stepsRemoved, sender
// port identity).
func Compare(a, b Vector) Result {
	if a == b {
		return Equal
	}

	if a.GrandmasterPriority1 != b.GrandmasterPriority1 {
		return cmpUint8(a.GrandmasterPriority1, b.GrandmasterPriority1)
	}
	if a.GrandmasterClockQuality.ClockClass != b.GrandmasterClockQuality.ClockClass {
		return cmpUint8(uint8(a.GrandmasterClockQuality.ClockClass), uint8(b.GrandmasterClockQuality.ClockClass))
	}
	if a.GrandmasterClockQuality.ClockAccuracy != b.GrandmasterClockQuality.ClockAccuracy {
		return cmpUint8(uint8(a.GrandmasterClockQuality.ClockAccuracy), uint8(b.GrandmasterClockQuality.ClockAccuracy))
	}
	if a.GrandmasterClockQuality.OffsetScaledLogVariance != b.GrandmasterClockQuality.OffsetScaledLogVariance {
		return cmpUint16(a.GrandmasterClockQuality.OffsetScaledLogVariance, b.GrandmasterClockQuality.OffsetScaledLogVariance)
	}
	if a.GrandmasterPriority2 != b.GrandmasterPriority2 {
		return cmpUint8(a.GrandmasterPriority2, b.GrandmasterPriority2)
	}
	if a.GrandmasterIdentity != b.GrandmasterIdentity {
		// Compared directly as unsigned (ClockIdentity is already
		// uint64); subtracting into a signed value would invert the
		// result whenever the two identities straddle the
		// 0x8000000000000000 boundary.
		if a.GrandmasterIdentity < b.GrandmasterIdentity {
			return ABetter
		}
		return BBetter
	}

	return compareTopology(a, b)
}

// cmpUint8 returns ABetter when lower is better (every field in the
// priority vector is "lower wins").
func cmpUint8(a, b uint8) Result {
	if a < b {
		return ABetter
	}
	return BBetter
}

func cmpUint16(a, b uint16) Result {
	if a < b {
		return ABetter
	}
	return BBetter
}
