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

package main

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/openptp/ptpcore/hostclock"
	ptp "github.com/openptp/ptpcore/ptp/protocol"
	"github.com/openptp/ptpcore/transport"
)

// eventMessage reports whether msg must travel over the PTP event
// port (319) rather than the general port (320), per IEEE 1588-2019
// Table 18.
func eventMessage(msg ptp.MessageType) bool {
	switch msg {
	case ptp.MessageSync, ptp.MessageDelayReq, ptp.MessagePDelayReq, ptp.MessagePDelayResp:
		return true
	default:
		return false
	}
}

// router is the hostclock.Sender that splits outgoing bytes across
// the event and general UDP sockets and feeds the resulting transmit
// timestamp back into the owning hostclock.System's tx table, closing
// the loop the Hardware Access Contract expects between Send and
// GetTxTimestamp.
type router struct {
	event   *transport.Conn
	general *transport.Conn
	dest    net.IP
	sys     *hostclock.System
}

func newRouter(event, general *transport.Conn, dest net.IP) *router {
	return &router{event: event, general: general, dest: dest}
}

func (r *router) Send(message []byte) error {
	if len(message) < 34 {
		return fmt.Errorf("message too short to route: %d bytes", len(message))
	}
	msgType, err := ptp.ProbeMsgType(message)
	if err != nil {
		return err
	}
	seq := binary.BigEndian.Uint16(message[30:32])

	conn := r.general
	if eventMessage(msgType) {
		conn = r.event
	}
	ts, err := conn.SendTo(message, r.dest)
	if err != nil {
		return fmt.Errorf("sending %s: %w", msgType, err)
	}
	if r.sys != nil {
		r.sys.RecordTxTimestamp(msgType, seq, ts)
	}
	return nil
}
