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

// Package dataset holds the in-memory data sets a PTP port carries:
// default, current, parent, port, and time-properties, plus the
// bounded foreign-master list. These are the only mutable shared
// state in the core; BMCA and the port state machine are the sole
// writers.
package dataset

import (
	"time"

	ptp "github.com/openptp/ptpcore/ptp/protocol"
)

// DelayMechanism selects how a port measures path delay.
type DelayMechanism uint8

// Supported delay mechanisms.
const (
	DelayMechanismE2E DelayMechanism = iota
	DelayMechanismP2P
)

func (d DelayMechanism) String() string {
	if d == DelayMechanismP2P {
		return "P2P"
	}
	return "E2E"
}

// DefaultDS is the static, configuration-derived data set (Table 13/14).
type DefaultDS struct {
	ClockIdentity ptp.ClockIdentity
	NumberPorts   uint16
	ClockQuality  ptp.ClockQuality
	Priority1     uint8
	Priority2     uint8
	DomainNumber  uint8
	SlaveOnly     bool
}

// CurrentDS is the dynamic data set derived from the sync pipeline (Table 15).
type CurrentDS struct {
	StepsRemoved      uint16
	OffsetFromMaster  ptp.TimeInterval
	MeanPathDelay     ptp.TimeInterval
}

// ParentDS identifies the port's chosen parent and grandmaster (Table 16).
type ParentDS struct {
	ParentPortIdentity      ptp.PortIdentity
	GrandmasterIdentity     ptp.ClockIdentity
	GrandmasterClockQuality ptp.ClockQuality
	GrandmasterPriority1    uint8
	GrandmasterPriority2    uint8
}

// PortDS is the per-port configuration and transient state (Table 17).
type PortDS struct {
	PortIdentity           ptp.PortIdentity
	PortState              ptp.PortState
	LogAnnounceInterval    ptp.LogInterval
	AnnounceReceiptTimeout uint8
	LogSyncInterval        ptp.LogInterval
	LogMinDelayReqInterval ptp.LogInterval
	LogMinPdelayReqInterval ptp.LogInterval
	DelayMechanism         DelayMechanism
	PeerMeanPathDelay      ptp.TimeInterval
	VersionNumber          uint8
}

// AnnounceTimeout returns the IEEE formula's foreign-master staleness
// bound: announceReceiptTimeout * 2^logAnnounceInterval.
func (p PortDS) AnnounceTimeout() time.Duration {
	return time.Duration(p.AnnounceReceiptTimeout) * p.LogAnnounceInterval.Duration()
}

// TimePropertiesDS carries the timescale and UTC-offset flags (Table 18).
type TimePropertiesDS struct {
	CurrentUTCOffset      int16
	CurrentUTCOffsetValid bool
	Leap59                bool
	Leap61                bool
	PTPTimescale          bool
	TimeTraceable         bool
	FrequencyTraceable    bool
	TimeSource            ptp.TimeSource
}

// Set is the full collection of data sets owned by a single port.
type Set struct {
	Default        DefaultDS
	Current        CurrentDS
	Parent         ParentDS
	Port           PortDS
	TimeProperties TimePropertiesDS
	ForeignMasters ForeignMasterList
}

// ResetParentToSelf restores parentDS to reflect the local clock, as
// required whenever BMCA selects the local vector as best.
func (s *Set) ResetParentToSelf() {
	s.Parent = ParentDS{
		ParentPortIdentity:      s.Port.PortIdentity,
		GrandmasterIdentity:     s.Default.ClockIdentity,
		GrandmasterClockQuality: s.Default.ClockQuality,
		GrandmasterPriority1:    s.Default.Priority1,
		GrandmasterPriority2:    s.Default.Priority2,
	}
	s.Current.StepsRemoved = 0
}

// New builds a Set with parentDS already pointing at self, matching
// the invariant that an unsynchronized clock is its own grandmaster.
func New(def DefaultDS, port PortDS, tp TimePropertiesDS) *Set {
	s := &Set{
		Default:        def,
		Port:           port,
		TimeProperties: tp,
		ForeignMasters: NewForeignMasterList(),
	}
	s.ResetParentToSelf()
	return s
}
