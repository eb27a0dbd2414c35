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

package coordinator

import (
	"encoding/binary"
	"time"

	ptp "github.com/openptp/ptpcore/ptp/protocol"

	"github.com/openptp/ptpcore/dataset"
	"github.com/openptp/ptpcore/portsm"
)

// syncLossMultiplier is the number of sync intervals without a
// completed offset computation before a Slave port is declared in
// holdover. IEEE 1588-2019 leaves the exact bound to the
// implementation; 3 sync intervals matches the announceReceiptTimeout
// convention of "a handful of missed periods, not one."
const syncLossMultiplier = 3

// Tick drives every time-based obligation a port has: aging out stale
// foreign masters, declaring an announce-receipt timeout, entering
// holdover (leaving it happens when the next offset is applied), and -
// while acting as Master or GrandMaster -
// emitting periodic Announce and Sync messages. Tick never calls
// ProcessMessage and is never called from within it.
func (p *Port) Tick(now time.Time) {
	p.ageForeignMasters(now)
	p.checkAnnounceTimeout(now)
	p.checkSyncLoss(now)

	switch p.SM.State() {
	case ptp.PortStateMaster, ptp.PortStateGrandMaster:
		p.emitMasterTraffic(now)
	case ptp.PortStateSlave, ptp.PortStateUncalibrated:
		p.emitSlaveTraffic(now)
	}
}

func (p *Port) ageForeignMasters(now time.Time) {
	timeout := p.Data.Port.AnnounceTimeout()
	if timeout <= 0 {
		return
	}
	if evicted := p.Data.ForeignMasters.Prune(now, timeout); evicted > 0 {
		p.runBMCA()
	}
}

func (p *Port) checkAnnounceTimeout(now time.Time) {
	state := p.SM.State()
	if state != ptp.PortStateSlave && state != ptp.PortStateUncalibrated {
		return
	}
	timeout := p.Data.Port.AnnounceTimeout()
	if timeout <= 0 || p.lastAnnounceRx.IsZero() {
		return
	}
	if now.Sub(p.lastAnnounceRx) <= timeout {
		return
	}
	p.SM.Deliver(portsm.EventAnnounceReceiptTimeout)
	p.runBMCA()
}

func (p *Port) checkSyncLoss(now time.Time) {
	if p.SM.State() != ptp.PortStateSlave || p.lastSyncRx.IsZero() {
		return
	}
	syncInterval := p.Data.Port.LogSyncInterval.Duration()
	if syncInterval <= 0 {
		return
	}
	if now.Sub(p.lastSyncRx) <= syncInterval*syncLossMultiplier {
		return
	}
	if !p.holdover.Active() {
		p.holdover.Enter(now, p.pi.MeanFreq())
	}
	if p.holdover.Degraded(now) {
		p.cb.NotifyFault("clock in holdover beyond grace window")
		p.SM.Deliver(portsm.EventSynchronizationFault)
	}
}

// emitMasterTraffic sends one Announce and one Sync per their
// respective configured intervals. It is a reference implementation:
// real deployments with many peers would track tx timers per peer, but
// a single-peer or multicast port needs only one.
func (p *Port) emitMasterTraffic(now time.Time) {
	announceInterval := p.Data.Port.LogAnnounceInterval.Duration()
	if announceInterval > 0 && now.Sub(p.lastAnnounceTx) >= announceInterval {
		p.sendAnnounce(now)
		p.lastAnnounceTx = now
	}

	syncInterval := p.Data.Port.LogSyncInterval.Duration()
	if syncInterval > 0 && now.Sub(p.lastSyncTx) >= syncInterval {
		p.sendSync(now)
		p.lastSyncTx = now
	}
}

// emitSlaveTraffic sends a Delay_Req (or Pdelay_Req, depending on the
// port's configured delay mechanism) once per logMinDelayReqInterval,
// mirroring a master's Sync cadence but driven by the slave side of
// the exchange (IEEE 1588-2019 §11.3).
func (p *Port) emitSlaveTraffic(now time.Time) {
	interval := p.Data.Port.LogMinDelayReqInterval.Duration()
	if interval <= 0 || now.Sub(p.lastDelayReqTx) < interval {
		return
	}
	p.lastDelayReqTx = now

	if p.Data.Port.DelayMechanism == dataset.DelayMechanismP2P {
		p.sendPdelayReq(now)
		return
	}
	p.sendDelayReq(now)
}

func (p *Port) sendDelayReq(now time.Time) {
	origin, err := p.hw.Now()
	if err != nil {
		p.cb.NotifyFault("reading clock for Delay_Req: " + err.Error())
		return
	}
	seq := p.nextSeq()
	msg := ptp.SyncDelayReq{
		Header: ptp.Header{
			SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessageDelayReq, 0),
			Version:            ptp.Version,
			MessageLength:      uint16(binary.Size(ptp.SyncDelayReq{})),
			DomainNumber:       p.Data.Default.DomainNumber,
			SourcePortIdentity: p.Data.Port.PortIdentity,
			SequenceID:         seq,
			LogMessageInterval: p.Data.Port.LogMinDelayReqInterval,
		},
		SyncDelayReqBody: ptp.SyncDelayReqBody{OriginTimestamp: origin},
	}
	buf, err := msg.MarshalBinary()
	if err != nil {
		p.cb.NotifyFault("marshalling Delay_Req: " + err.Error())
		return
	}
	if err := p.hw.Send(buf, false); err != nil {
		p.cb.NotifyFault("sending Delay_Req: " + err.Error())
		return
	}
	p.delay.OnDelayReqSent(seq, origin)
}

func (p *Port) sendPdelayReq(now time.Time) {
	origin, err := p.hw.Now()
	if err != nil {
		p.cb.NotifyFault("reading clock for Pdelay_Req: " + err.Error())
		return
	}
	seq := p.nextSeq()
	msg := ptp.PDelayReq{
		Header: ptp.Header{
			SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessagePDelayReq, 0),
			Version:            ptp.Version,
			MessageLength:      uint16(binary.Size(ptp.PDelayReq{})),
			DomainNumber:       p.Data.Default.DomainNumber,
			SourcePortIdentity: p.Data.Port.PortIdentity,
			SequenceID:         seq,
			LogMessageInterval: p.Data.Port.LogMinPdelayReqInterval,
		},
		PDelayReqBody: ptp.PDelayReqBody{OriginTimestamp: origin},
	}
	buf, err := msg.MarshalBinary()
	if err != nil {
		p.cb.NotifyFault("marshalling Pdelay_Req: " + err.Error())
		return
	}
	if err := p.hw.Send(buf, false); err != nil {
		p.cb.NotifyFault("sending Pdelay_Req: " + err.Error())
		return
	}
	p.pdelay.OnPdelayReqSent(seq, origin, now)
}

func (p *Port) nextSeq() uint16 {
	p.egressSeq++
	return p.egressSeq
}

func (p *Port) sendAnnounce(now time.Time) {
	origin, err := p.hw.Now()
	if err != nil {
		p.cb.NotifyFault("reading clock for Announce: " + err.Error())
		return
	}
	msg := ptp.Announce{
		Header: ptp.Header{
			SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessageAnnounce, 0),
			Version:            ptp.Version,
			MessageLength:      uint16(binary.Size(ptp.Announce{})),
			DomainNumber:       p.Data.Default.DomainNumber,
			SourcePortIdentity: p.Data.Port.PortIdentity,
			SequenceID:         p.nextSeq(),
			LogMessageInterval: p.Data.Port.LogAnnounceInterval,
		},
		AnnounceBody: ptp.AnnounceBody{
			OriginTimestamp:         origin,
			CurrentUTCOffset:        p.Data.TimeProperties.CurrentUTCOffset,
			GrandmasterPriority1:    p.Data.Parent.GrandmasterPriority1,
			GrandmasterClockQuality: p.Data.Parent.GrandmasterClockQuality,
			GrandmasterPriority2:    p.Data.Parent.GrandmasterPriority2,
			GrandmasterIdentity:     p.Data.Parent.GrandmasterIdentity,
			StepsRemoved:            p.Data.Current.StepsRemoved,
		},
	}
	buf, err := msg.MarshalBinary()
	if err != nil {
		p.cb.NotifyFault("marshalling Announce: " + err.Error())
		return
	}
	if err := p.hw.Send(buf, false); err != nil {
		p.cb.NotifyFault("sending Announce: " + err.Error())
	}
}

func (p *Port) sendSync(now time.Time) {
	origin, err := p.hw.Now()
	if err != nil {
		p.cb.NotifyFault("reading clock for Sync: " + err.Error())
		return
	}
	seq := p.nextSeq()
	msg := ptp.SyncDelayReq{
		Header: ptp.Header{
			SdoIDAndMsgType:    ptp.NewSdoIDAndMsgType(ptp.MessageSync, 0),
			Version:            ptp.Version,
			MessageLength:      uint16(binary.Size(ptp.SyncDelayReq{})),
			DomainNumber:       p.Data.Default.DomainNumber,
			FlagField:          ptp.FlagTwoStep,
			SourcePortIdentity: p.Data.Port.PortIdentity,
			SequenceID:         seq,
			LogMessageInterval: p.Data.Port.LogSyncInterval,
		},
		SyncDelayReqBody: ptp.SyncDelayReqBody{OriginTimestamp: origin},
	}
	buf, err := msg.MarshalBinary()
	if err != nil {
		p.cb.NotifyFault("marshalling Sync: " + err.Error())
		return
	}
	if err := p.hw.Send(buf, true); err != nil {
		p.cb.NotifyFault("sending Sync: " + err.Error())
		return
	}

	// A two-step Sync's precise transmission time is only known once
	// the host's transport layer reports the hardware timestamp; the
	// Follow_Up is the host's responsibility to send once
	// GetTxTimestamp resolves it, matching the Hardware Access
	// Contract's poll-once-per-tick design.
}
