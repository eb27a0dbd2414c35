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
	"time"

	ptp "github.com/openptp/ptpcore/ptp/protocol"

	"github.com/openptp/ptpcore/calc"
	"github.com/openptp/ptpcore/fault"
	"github.com/openptp/ptpcore/handler"
)

// ProcessMessage is the core's ingress entry point. It enforces the
// fixed pipeline order: header validation, then pairing
// or data-set update, then BMCA (Announce only), then the state
// machine event, then a servo step if a complete offset was produced.
// No step here calls back into ProcessMessage or Tick.
func (p *Port) ProcessMessage(buf []byte, rxTimestamp ptp.Timestamp, now time.Time) error {
	msgType, err := ptp.ProbeMsgType(buf)
	if err != nil {
		p.reportFault(fault.Wrap(fault.ParseFailed, err, "probing message type"))
		return err
	}

	switch msgType {
	case ptp.MessageAnnounce:
		return p.handleAnnounce(buf, now)
	case ptp.MessageSync:
		return p.handleSync(buf, rxTimestamp, now)
	case ptp.MessageFollowUp:
		return p.handleFollowUp(buf, now)
	case ptp.MessageDelayReq:
		return p.handleDelayReq(buf, rxTimestamp)
	case ptp.MessageDelayResp:
		return p.handleDelayResp(buf, now)
	case ptp.MessagePDelayReq:
		return p.handlePdelayReq(buf, rxTimestamp)
	case ptp.MessagePDelayResp:
		return p.handlePdelayResp(buf, rxTimestamp, now)
	case ptp.MessagePDelayRespFollowUp:
		return p.handlePdelayRespFollowUp(buf, now)
	default:
		p.Counters.MessagesDropped++
		return fault.New(fault.ParseFailed, "unhandled message type %v", msgType)
	}
}

func (p *Port) handleAnnounce(buf []byte, now time.Time) error {
	var msg ptp.Announce
	if err := msg.UnmarshalBinary(buf); err != nil {
		f := fault.Wrap(fault.ParseFailed, err, "unmarshalling Announce")
		p.reportFault(f)
		return f
	}
	if err := handler.ValidateHeader(&msg.Header, p.Data.Default.DomainNumber); err != nil {
		p.reportFault(err)
		return err
	}
	if err := handler.ValidateAnnounceBody(&msg.AnnounceBody); err != nil {
		p.reportFault(err)
		return err
	}
	if msg.SourcePortIdentity == p.Data.Port.PortIdentity {
		return nil // looped-back multicast of our own Announce
	}

	p.Data.ForeignMasters.Upsert(msg.SourcePortIdentity, msg.AnnounceBody, now)
	p.Counters.BMCACandidateUpdates++
	p.lastAnnounceRx = now

	p.runBMCA()
	return nil
}

func (p *Port) handleSync(buf []byte, rxTimestamp ptp.Timestamp, now time.Time) error {
	var msg ptp.SyncDelayReq
	if err := msg.UnmarshalBinary(buf); err != nil {
		f := fault.Wrap(fault.ParseFailed, err, "unmarshalling Sync")
		p.reportFault(f)
		return f
	}
	if err := handler.ValidateHeader(&msg.Header, p.Data.Default.DomainNumber); err != nil {
		p.reportFault(err)
		return err
	}
	if err := handler.ValidateTimestamp(msg.OriginTimestamp); err != nil {
		p.reportFault(err)
		return err
	}

	p.lastSyncRx = now
	if msg.FlagField&ptp.FlagTwoStep == 0 {
		pair := p.sync.OnSyncOneStep(msg.SequenceID, msg.OriginTimestamp, rxTimestamp, msg.CorrectionField, now)
		p.pendingSync = pair
		p.havePendingSync = true
		return nil
	}
	p.sync.OnSyncTwoStep(msg.SequenceID, rxTimestamp, msg.CorrectionField, now)
	return nil
}

func (p *Port) handleFollowUp(buf []byte, now time.Time) error {
	var msg ptp.FollowUp
	if err := msg.UnmarshalBinary(buf); err != nil {
		f := fault.Wrap(fault.ParseFailed, err, "unmarshalling Follow_Up")
		p.reportFault(f)
		return f
	}
	if err := handler.ValidateHeader(&msg.Header, p.Data.Default.DomainNumber); err != nil {
		p.reportFault(err)
		return err
	}
	if err := handler.ValidateTimestamp(msg.PreciseOriginTimestamp); err != nil {
		p.reportFault(err)
		return err
	}

	pair, ok := p.sync.OnFollowUp(msg.SequenceID, msg.PreciseOriginTimestamp, msg.CorrectionField, now)
	if !ok {
		p.Counters.MessagesDropped++
		return nil
	}
	p.pendingSync = pair
	p.havePendingSync = true
	return nil
}

// handleDelayReq is the master-side responder: record the reception
// timestamp and leave emitting Delay_Resp to the host's egress path,
// since the core has no socket of its own to send unsolicited replies
// from inside an ingress handler.
func (p *Port) handleDelayReq(buf []byte, rxTimestamp ptp.Timestamp) error {
	var msg ptp.SyncDelayReq
	if err := msg.UnmarshalBinary(buf); err != nil {
		f := fault.Wrap(fault.ParseFailed, err, "unmarshalling Delay_Req")
		p.reportFault(f)
		return f
	}
	if err := handler.ValidateHeader(&msg.Header, p.Data.Default.DomainNumber); err != nil {
		p.reportFault(err)
		return err
	}
	if err := handler.ValidateTimestamp(msg.OriginTimestamp); err != nil {
		p.reportFault(err)
		return err
	}
	return nil
}

func (p *Port) handleDelayResp(buf []byte, now time.Time) error {
	var msg ptp.DelayResp
	if err := msg.UnmarshalBinary(buf); err != nil {
		f := fault.Wrap(fault.ParseFailed, err, "unmarshalling Delay_Resp")
		p.reportFault(f)
		return f
	}
	if err := handler.ValidateHeader(&msg.Header, p.Data.Default.DomainNumber); err != nil {
		p.reportFault(err)
		return err
	}
	if err := handler.ValidateTimestamp(msg.ReceiveTimestamp); err != nil {
		p.reportFault(err)
		return err
	}

	pair, ok := p.delay.OnDelayResp(msg.SequenceID, msg.RequestingPortIdentity, p.Data.Port.PortIdentity, msg.ReceiveTimestamp, msg.CorrectionField)
	if !ok {
		p.Counters.ValidationsFailed++
		return nil
	}
	if !p.havePendingSync {
		p.Counters.MessagesDropped++
		return nil
	}

	cf := addCorrectionChain(p.pendingSync.Correction, pair.Correction)
	result := calc.E2E(p.pendingSync.T1, p.pendingSync.T2, pair.T3, pair.T4, cf, p.cfg.BankerRounding)
	p.havePendingSync = false

	if result.OrderingViolation {
		p.reportFault(handler.ValidateOrdering(true))
	}

	p.applyOffset(now, result.OffsetFromMaster, result.MeanPathDelay)
	return nil
}

func (p *Port) handlePdelayReq(buf []byte, rxTimestamp ptp.Timestamp) error {
	var msg ptp.PDelayReq
	if err := msg.UnmarshalBinary(buf); err != nil {
		f := fault.Wrap(fault.ParseFailed, err, "unmarshalling Pdelay_Req")
		p.reportFault(f)
		return f
	}
	if err := handler.ValidateHeader(&msg.Header, p.Data.Default.DomainNumber); err != nil {
		p.reportFault(err)
		return err
	}
	if err := handler.ValidateTimestamp(msg.OriginTimestamp); err != nil {
		p.reportFault(err)
		return err
	}
	return nil
}

func (p *Port) handlePdelayResp(buf []byte, rxTimestamp ptp.Timestamp, now time.Time) error {
	var msg ptp.PDelayResp
	if err := msg.UnmarshalBinary(buf); err != nil {
		f := fault.Wrap(fault.ParseFailed, err, "unmarshalling Pdelay_Resp")
		p.reportFault(f)
		return f
	}
	if err := handler.ValidateHeader(&msg.Header, p.Data.Default.DomainNumber); err != nil {
		p.reportFault(err)
		return err
	}
	if err := handler.ValidateTimestamp(msg.RequestReceiptTimestamp); err != nil {
		p.reportFault(err)
		return err
	}

	if msg.FlagField&ptp.FlagTwoStep == 0 {
		// One-step Pdelay_Resp carries no separate response-origin
		// timestamp; the peer's turnaround is folded into
		// correctionField instead (IEEE 1588-2019 §11.4.3), so t3 is
		// taken equal to t2 and the turnaround applied via
		// pdelayCorrections in completePdelay.
		pair, ok := p.pdelay.OnPdelayRespOneStep(msg.SequenceID, msg.RequestReceiptTimestamp, msg.RequestReceiptTimestamp, rxTimestamp)
		if !ok {
			p.Counters.MessagesDropped++
			return nil
		}
		p.completePdelay(pair, msg.CorrectionField)
		return nil
	}
	p.pdelay.OnPdelayRespTwoStep(msg.SequenceID, msg.RequestReceiptTimestamp, rxTimestamp, now)
	return nil
}

func (p *Port) handlePdelayRespFollowUp(buf []byte, now time.Time) error {
	var msg ptp.PDelayRespFollowUp
	if err := msg.UnmarshalBinary(buf); err != nil {
		f := fault.Wrap(fault.ParseFailed, err, "unmarshalling Pdelay_Resp_Follow_Up")
		p.reportFault(f)
		return f
	}
	if err := handler.ValidateHeader(&msg.Header, p.Data.Default.DomainNumber); err != nil {
		p.reportFault(err)
		return err
	}
	if err := handler.ValidateTimestamp(msg.ResponseOriginTimestamp); err != nil {
		p.reportFault(err)
		return err
	}

	pair, ok := p.pdelay.OnPdelayRespFollowUp(msg.SequenceID, msg.ResponseOriginTimestamp, now)
	if !ok {
		p.Counters.MessagesDropped++
		return nil
	}
	p.completePdelay(pair, msg.CorrectionField)
	return nil
}

func (p *Port) completePdelay(pair handler.PdelayPair, correction ptp.Correction) {
	result := calc.P2P(pair.T1, pair.T2, pair.T3, pair.T4, correction, p.cfg.BankerRounding)
	if result.OrderingViolation {
		p.reportFault(handler.ValidateOrdering(true))
	}
	p.Data.Port.PeerMeanPathDelay = result.PeerMeanPathDelay
}

// addCorrectionChain folds a Sync/Follow_Up correction and a
// Delay_Resp correction into the single accumulated correctionField
// calc.E2E expects, saturating the same way handler's addCorrection
// does for any individual pairing step.
func addCorrectionChain(a, b ptp.Correction) ptp.Correction {
	if a.TooBig() || b.TooBig() {
		return ptp.Correction(0x7fffffffffffffff)
	}
	sum := int64(a) + int64(b)
	if sum < 0 {
		return ptp.Correction(0x7fffffffffffffff)
	}
	return ptp.Correction(sum)
}
