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

package bmca

import (
	ptp "github.com/openptp/ptpcore/ptp/protocol"

	"github.com/openptp/ptpcore/dataset"
)

// Decision is the BMCA's recommended state for a single port, plus the
// erbest/ebest vectors it was derived from (the recommended-state
// output, generalized from a single-port decision to drive the
// port state machine's BMCA-triggered transitions).
type Decision struct {
	RecommendedState ptp.PortState
	Ebest            Vector
	LocalWins        bool
}

// Erbest selects the best vector received on one port (the "E receive
// best" of the standard's multi-port BMCA), by folding Compare across
// every live foreign-master record.
func Erbest(records []dataset.ForeignMasterRecord, receiver ptp.PortIdentity) (Vector, bool) {
	if len(records) == 0 {
		return Vector{}, false
	}
	best := VectorFromAnnounce(records[0].Announce, records[0].Sender, receiver)
	for _, r := range records[1:] {
		v := VectorFromAnnounce(r.Announce, r.Sender, receiver)
		if Compare(v, best) > Equal {
			best = v
		}
	}
	return best, true
}

// Select runs the single-port-instance BMCA: the local
// vector is compared against the best vector received on the port, and
// the result decides whether the local clock recommends itself as
// grandmaster/master or defers to the foreign master.
//
// When the foreign vector wins on the data fields or on stepsRemoved,
// the port is recommended SLAVE. PASSIVE is recommended only when the
// two vectors tie on every priority field and the sender port identity
// alone decides against the local clock (or the vectors are identical).
// currentState does not affect the decision.
func Select(d *dataset.Set, currentState ptp.PortState) Decision {
	local := VectorFromLocal(d)
	records := d.ForeignMasters.Records()

	erbest, haveForeign := Erbest(records, d.Port.PortIdentity)
	if !haveForeign {
		return Decision{RecommendedState: recommendGrandmaster(d), Ebest: local, LocalWins: true}
	}

	cmp := Compare(local, erbest)
	if cmp > Equal {
		return Decision{RecommendedState: recommendGrandmaster(d), Ebest: local, LocalWins: true}
	}

	if cmp == BBetterTopo || cmp == Equal {
		return Decision{RecommendedState: ptp.PortStatePassive, Ebest: erbest}
	}

	return Decision{RecommendedState: ptp.PortStateSlave, Ebest: erbest}
}

// recommendGrandmaster returns LISTENING for a slaveOnly clock, which
// never takes a master role. Otherwise it returns GRAND_MASTER when the port has no peers
// to be a boundary clock toward (numberPorts == 1, a common leaf-device
// deployment); MASTER otherwise, per the GRAND_MASTER non-standard
// extension's intent.
func recommendGrandmaster(d *dataset.Set) ptp.PortState {
	if d.Default.SlaveOnly {
		return ptp.PortStateListening
	}
	if d.Default.NumberPorts <= 1 {
		return ptp.PortStateGrandMaster
	}
	return ptp.PortStateMaster
}

// ApplyDecision updates parentDS/currentDS to reflect a BMCA decision,
// following the invariant that when local wins, parentDS must be
// reset to self, and otherwise adopting the winning foreign vector.
func ApplyDecision(d *dataset.Set, dec Decision) {
	if dec.LocalWins {
		d.ResetParentToSelf()
		return
	}
	d.Parent.ParentPortIdentity = dec.Ebest.SenderPortIdentity
	d.Parent.GrandmasterIdentity = dec.Ebest.GrandmasterIdentity
	d.Parent.GrandmasterClockQuality = dec.Ebest.GrandmasterClockQuality
	d.Parent.GrandmasterPriority1 = dec.Ebest.GrandmasterPriority1
	d.Parent.GrandmasterPriority2 = dec.Ebest.GrandmasterPriority2
	d.Current.StepsRemoved = dec.Ebest.StepsRemoved + 1
}
