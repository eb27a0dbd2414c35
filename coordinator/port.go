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

// Package coordinator wires the data sets, BMCA, port state machine,
// message pairing, offset calculator, and servo into the single seam
// that drives one PTP port end to end: ProcessMessage for ingress,
// Tick for timers and egress. It never touches a socket or a clock
// device directly; every side effect crosses the hwclock.Interface
// contract, generalizing ptp/sptp/client/sptp.go's runInternal/
// processResults loop from a one-shot unicast client to a standing
// port that can be Master, Slave, or Passive.
package coordinator

import (
	"time"

	ptp "github.com/openptp/ptpcore/ptp/protocol"

	"github.com/openptp/ptpcore/bmca"
	"github.com/openptp/ptpcore/dataset"
	"github.com/openptp/ptpcore/fault"
	"github.com/openptp/ptpcore/handler"
	"github.com/openptp/ptpcore/hwclock"
	"github.com/openptp/ptpcore/portsm"
	"github.com/openptp/ptpcore/servo"
)

// Config carries the per-port tunables that are not already captured
// in dataset.Set.
type Config struct {
	AcceptanceCount      int
	BankerRounding       bool
	SyncGraceWindow      time.Duration
	PdelayGraceWindow    time.Duration
	HoldoverGraceWindow  time.Duration
	LockThresholdNs      int64
	UnlockThresholdNs    int64
	LockRequiredSamples  int
	MaxFrequencyPPB      float64
	ServoCfg             *servo.PiServoCfg
	ServoFilterCfg       *servo.PiServoFilterCfg
}

// Counters are the bounded event tallies the coordinator maintains for
// observability. They are plain uint64s rather than
// atomics: a Port is only ever driven by one goroutine at a time
// (ProcessMessage and Tick are not reentrant, per the ordering
// invariant), matching ptp/ptp4u/stats's per-worker counters before
// they are folded into the process-wide exporter.
type Counters struct {
	MessagesDropped      uint64
	ValidationsFailed    uint64
	BMCASelections       uint64
	BMCACandidateUpdates uint64
	BMCALocalWins        uint64
	BMCAForeignWins      uint64
	BMCAPassiveWins      uint64
	OffsetsComputed      uint64
	ClockSteps           uint64
	FrequencyAdjustments uint64
}

// Port is one PTP port's complete runtime state. The coordinator owns
// no goroutines; ProcessMessage and Tick are called synchronously by
// the host and must never be invoked reentrantly from within each
// other.
type Port struct {
	Data *dataset.Set
	SM   *portsm.Machine

	hw  hwclock.Interface
	cb  hwclock.EventCallbacks
	cfg Config

	sync   *handler.SyncPairer
	delay  handler.DelayPairer
	pdelay *handler.PdelayPairer

	pendingSync     handler.SyncPair
	havePendingSync bool

	pi       *servo.PiServo
	lock     *servo.LockTracker
	holdover *servo.HoldoverController

	lastAnnounceRx time.Time
	lastSyncRx     time.Time
	lastAnnounceTx time.Time
	lastSyncTx     time.Time
	lastDelayReqTx time.Time
	egressSeq      uint16

	Counters Counters
}

// NewPort builds a Port around an already-populated data set and a
// host-supplied hardware contract. The PI servo starts from a
// frequency offset of 0 ppb.
func NewPort(data *dataset.Set, hw hwclock.Interface, cb hwclock.EventCallbacks, cfg Config) *Port {
	p := &Port{
		Data:     data,
		hw:       hw,
		cb:       cb,
		cfg:      cfg,
		sync:     handler.NewSyncPairer(cfg.SyncGraceWindow),
		pdelay:   handler.NewPdelayPairer(cfg.PdelayGraceWindow),
		lock:     servo.NewLockTracker(cfg.LockThresholdNs, cfg.UnlockThresholdNs, cfg.LockRequiredSamples),
		holdover: servo.NewHoldoverController(cfg.HoldoverGraceWindow),
	}

	servoCfg := servo.DefaultServoConfig()
	piCfg := cfg.ServoCfg
	if piCfg == nil {
		piCfg = servo.DefaultPiServoCfg()
	}
	pi := servo.NewPiServo(servoCfg, piCfg, 0)
	pi.SetMaxFreq(cfg.MaxFrequencyPPB)
	filterCfg := cfg.ServoFilterCfg
	if filterCfg == nil {
		filterCfg = servo.DefaultPiServoFilterCfg()
	}
	servo.NewPiServoFilter(pi, filterCfg)
	p.pi = pi

	p.SM = portsm.New(func(old, next ptp.PortState) {
		if portsm.ResetsServo(next) {
			p.pi.Unlock()
			p.lock.Reset()
		}
		p.cb.NotifyStateChange(old, next)
	})
	return p
}

// Start delivers the POWERUP event every port takes on construction;
// the state machine handles it by passing through INITIALIZING to
// LISTENING.
func (p *Port) Start() {
	p.SM.Deliver(portsm.EventPowerup)
}

// runBMCA executes the single-port BMCA decision and drives it through
// the port state machine, counting outcomes for observability
// (the BMCA_* metrics).
func (p *Port) runBMCA() {
	dec := bmca.Select(p.Data, p.SM.State())
	p.Counters.BMCASelections++
	bmca.ApplyDecision(p.Data, dec)

	if dec.LocalWins {
		p.Counters.BMCALocalWins++
	} else {
		p.Counters.BMCAForeignWins++
	}

	switch dec.RecommendedState {
	case ptp.PortStateGrandMaster:
		p.SM.Deliver(portsm.EventRSGrandMaster)
	case ptp.PortStateMaster, ptp.PortStatePreMaster:
		p.SM.Deliver(portsm.EventRSMaster)
	case ptp.PortStateSlave, ptp.PortStateUncalibrated:
		p.SM.Deliver(portsm.EventRSSlave)
	case ptp.PortStatePassive:
		p.Counters.BMCAPassiveWins++
		p.SM.Deliver(portsm.EventRSPassive)
	case ptp.PortStateListening:
		// SlaveOnly port with no qualifying master: stay put, no event.
	}
}

// applyOffset feeds one completed offset/delay computation through the
// lock tracker, the state machine's qualification counter, the servo,
// and finally the hardware contract - the tail of the ordering
// invariant ("servo step (if offset was produced) -> egress
// publications").
func (p *Port) applyOffset(now time.Time, offset, meanPathDelay ptp.TimeInterval) {
	offsetNs := int64(offset) >> 16

	p.Data.Current.OffsetFromMaster = offset
	p.Data.Current.MeanPathDelay = meanPathDelay
	p.Counters.OffsetsComputed++

	withinThreshold := p.lock.Observe(offsetNs)
	if withinThreshold {
		p.SM.NoteSyncWithinLockThreshold(p.cfg.AcceptanceCount)
	} else {
		p.SM.NoteSyncOutOfThreshold()
	}

	if p.holdover.Active() {
		p.holdover.Exit()
	}

	freqAdj, state := p.pi.Sample(offsetNs, uint64(now.UnixNano()))
	switch state {
	case servo.StateJump:
		if err := p.hw.StepClock(float64(-offsetNs)); err != nil {
			p.cb.NotifyFault("step clock failed: " + err.Error())
		} else {
			p.Counters.ClockSteps++
		}
	case servo.StateLocked:
		if err := p.hw.AdjustFrequency(-freqAdj); err != nil {
			p.cb.NotifyFault("adjust frequency failed: " + err.Error())
		} else {
			p.Counters.FrequencyAdjustments++
		}
		p.pi.UnsetFirstUpdate()
	}

	p.cb.NotifySyncStatus(p.lock.Locked(), float64(offsetNs), meanPathDelay.Nanoseconds())
}

// reportFault increments the fault-kind-appropriate counter and
// surfaces the fault through the host callback; it never aborts the
// caller.
func (p *Port) reportFault(err error) {
	if f, ok := err.(*fault.Fault); ok {
		switch f.Kind {
		case fault.OverflowDropped:
			p.Counters.MessagesDropped++
		default:
			p.Counters.ValidationsFailed++
		}
		p.cb.NotifyFault(f.Error())
		return
	}
	p.Counters.ValidationsFailed++
	p.cb.NotifyFault(err.Error())
}
