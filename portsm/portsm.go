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

// Package portsm implements the per-port state machine: the nine
// IEEE 1588-2019 states plus the GRAND_MASTER extension and their
// transition table. Time-based events are raised by the coordinator's
// Tick, not by this package.
package portsm

import (
	ptp "github.com/openptp/ptpcore/ptp/protocol"
)

// Event is one of the state machine's defined inputs.
type Event uint8

// Recognized events.
const (
	EventPowerup Event = iota
	EventInitialize
	EventFaultDetected
	EventFaultCleared
	EventDesignatedEnabled
	EventDesignatedDisabled
	EventRSGrandMaster
	EventRSMaster
	EventRSSlave
	EventRSPassive
	EventAnnounceReceiptTimeout
	EventSynchronizationFault
	EventQualificationTimeout
)

var eventNames = map[Event]string{
	EventPowerup:                "POWERUP",
	EventInitialize:             "INITIALIZE",
	EventFaultDetected:          "FAULT_DETECTED",
	EventFaultCleared:           "FAULT_CLEARED",
	EventDesignatedEnabled:      "DESIGNATED_ENABLED",
	EventDesignatedDisabled:     "DESIGNATED_DISABLED",
	EventRSGrandMaster:          "RS_GRAND_MASTER",
	EventRSMaster:               "RS_MASTER",
	EventRSSlave:                "RS_SLAVE",
	EventRSPassive:              "RS_PASSIVE",
	EventAnnounceReceiptTimeout: "ANNOUNCE_RECEIPT_TIMEOUT",
	EventSynchronizationFault:   "SYNCHRONIZATION_FAULT",
	EventQualificationTimeout:   "QUALIFICATION_TIMEOUT",
}

func (e Event) String() string { return eventNames[e] }

// bmcaEligible is the set of states BMCA is permitted to run from, and
// therefore the set of states an RS_* event may be delivered in. This
// is deliberate: every non-fatal state is BMCA-eligible, not
// just Listening.
var bmcaEligible = map[ptp.PortState]bool{
	ptp.PortStateListening:    true,
	ptp.PortStatePreMaster:    true,
	ptp.PortStateMaster:       true,
	ptp.PortStatePassive:      true,
	ptp.PortStateUncalibrated: true,
	ptp.PortStateSlave:        true,
}

// Machine is a single port's state machine. It holds no data-set or
// servo state itself; the coordinator owns those and calls back into
// Machine purely for the state transition.
type Machine struct {
	state            ptp.PortState
	onStateChange    func(old, new ptp.PortState)
	qualificationHit int
}

// New returns a machine starting in Initializing, matching every port's
// bootstrap entry condition.
func New(onStateChange func(old, new ptp.PortState)) *Machine {
	return &Machine{state: ptp.PortStateInitializing, onStateChange: onStateChange}
}

// State returns the current port state.
func (m *Machine) State() ptp.PortState {
	return m.state
}

// transition moves to next, invoking the state-change callback only
// when the state actually changes (re-affirming a recommendation is
// not itself an event).
func (m *Machine) transition(next ptp.PortState) {
	if next == m.state {
		return
	}
	old := m.state
	m.state = next
	if m.onStateChange != nil {
		m.onStateChange(old, next)
	}
}

// Deliver applies one event to the machine, returning whether it was
// accepted. An event illegal for the current state is rejected
// (fault.StateMachineError territory; the coordinator is responsible
// for counting/logging that).
func (m *Machine) Deliver(ev Event) bool {
	switch ev {
	case EventPowerup, EventInitialize:
		m.transition(ptp.PortStateInitializing)
		m.transition(ptp.PortStateListening)
		return true

	case EventFaultDetected:
		if m.state == ptp.PortStateDisabled {
			return false
		}
		m.transition(ptp.PortStateFaulty)
		return true

	case EventFaultCleared:
		if m.state != ptp.PortStateFaulty {
			return false
		}
		m.transition(ptp.PortStateListening)
		return true

	case EventDesignatedDisabled:
		m.transition(ptp.PortStateDisabled)
		return true

	case EventDesignatedEnabled:
		if m.state != ptp.PortStateDisabled {
			return false
		}
		m.transition(ptp.PortStateListening)
		return true

	case EventRSGrandMaster:
		return m.deliverRoleRecommendation(ptp.PortStateGrandMaster)
	case EventRSMaster:
		return m.deliverRoleRecommendation(ptp.PortStatePreMaster)
	case EventRSSlave:
		return m.deliverRoleRecommendation(ptp.PortStateUncalibrated)
	case EventRSPassive:
		return m.deliverRoleRecommendation(ptp.PortStatePassive)

	case EventAnnounceReceiptTimeout:
		if m.state != ptp.PortStateSlave && m.state != ptp.PortStateUncalibrated {
			return false
		}
		m.transition(ptp.PortStateListening)
		return true

	case EventSynchronizationFault:
		if m.state != ptp.PortStateSlave && m.state != ptp.PortStateUncalibrated {
			return false
		}
		m.transition(ptp.PortStateUncalibrated)
		return true

	case EventQualificationTimeout:
		if m.state != ptp.PortStatePreMaster {
			return false
		}
		m.transition(ptp.PortStateMaster)
		return true
	}
	return false
}

// deliverRoleRecommendation applies a BMCA role recommendation, valid
// from every bmcaEligible state.
func (m *Machine) deliverRoleRecommendation(target ptp.PortState) bool {
	if !bmcaEligible[m.state] {
		return false
	}

	switch target {
	case ptp.PortStateGrandMaster:
		m.transition(ptp.PortStateGrandMaster)
	case ptp.PortStatePreMaster:
		if m.state == ptp.PortStateMaster || m.state == ptp.PortStateGrandMaster {
			return true // already at or beyond PreMaster, nothing to do
		}
		m.transition(ptp.PortStatePreMaster)
	case ptp.PortStateUncalibrated:
		if m.state == ptp.PortStateSlave {
			return true // already locked onto this master, nothing to do
		}
		if m.state != ptp.PortStateUncalibrated {
			m.qualificationHit = 0
		}
		m.transition(ptp.PortStateUncalibrated)
	case ptp.PortStatePassive:
		m.transition(ptp.PortStatePassive)
	}
	return true
}

// NoteSyncWithinLockThreshold records one successful, in-threshold
// offset computation while Uncalibrated, promoting to Slave after the
// configured count: N successful offset computations within an
// acceptance window, each below the servo lock threshold.
// Returns true if the transition to Slave happened.
func (m *Machine) NoteSyncWithinLockThreshold(acceptanceCount int) bool {
	if m.state != ptp.PortStateUncalibrated {
		return false
	}
	m.qualificationHit++
	if m.qualificationHit >= acceptanceCount {
		m.transition(ptp.PortStateSlave)
		return true
	}
	return false
}

// NoteSyncOutOfThreshold resets the Uncalibrated->Slave acceptance
// counter on an out-of-threshold sample, without changing state.
func (m *Machine) NoteSyncOutOfThreshold() {
	if m.state == ptp.PortStateUncalibrated {
		m.qualificationHit = 0
	}
}

// ResetsServo reports whether entering this state must reset the
// servo's integrator state: a transition to Master/PreMaster resets
// servo integrator state.
func ResetsServo(state ptp.PortState) bool {
	return state == ptp.PortStateMaster || state == ptp.PortStatePreMaster
}
