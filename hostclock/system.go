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

// Package hostclock provides reference implementations of
// hwclock.Interface over the kept clock and phc packages: System
// steers CLOCK_REALTIME directly, PHC steers a NIC's hardware clock.
// Neither package owns a network socket; egress bytes are handed to a
// caller-supplied sender, and transmit timestamps are recorded back in
// through RecordTxTimestamp once the host's transport layer obtains
// them (matching the Hardware Access Contract's poll-once-per-tick
// design).
package hostclock

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/openptp/ptpcore/clock"
	ptp "github.com/openptp/ptpcore/ptp/protocol"

	"github.com/openptp/ptpcore/hwclock"
)

// Sender abstracts the egress transport a hostclock adapter hands
// bytes to; real deployments plug in a UDP socket, tests plug in a
// recorder.
type Sender interface {
	Send(message []byte) error
}

// System is a hwclock.Interface backed by CLOCK_REALTIME via the
// clock package's clock_adjtime wrappers (clock.AdjFreqPPB/clock.Step).
type System struct {
	sender Sender
	txTable
}

// NewSystem returns a System adapter sending egress bytes through
// sender.
func NewSystem(sender Sender) *System {
	return &System{sender: sender}
}

// Send transmits message through the configured sender.
func (s *System) Send(message []byte, _ bool) error {
	return s.sender.Send(message)
}

// Now reads CLOCK_REALTIME as a PTP Timestamp.
func (s *System) Now() (ptp.Timestamp, error) {
	return toPTPTimestamp(time.Now()), nil
}

// StepClock performs an absolute clock set via clock.Step.
func (s *System) StepClock(offsetNs float64) error {
	_, err := clock.Step(unix.CLOCK_REALTIME, time.Duration(offsetNs))
	return err
}

// AdjustFrequency applies a relative rate control via clock.AdjFreqPPB.
func (s *System) AdjustFrequency(ppb float64) error {
	_, err := clock.AdjFreqPPB(unix.CLOCK_REALTIME, ppb)
	return err
}

// Capabilities reports no hardware timestamping: CLOCK_REALTIME is a
// software clock.
func (s *System) Capabilities() hwclock.Capability {
	return 0
}

func toPTPTimestamp(t time.Time) ptp.Timestamp {
	return ptp.Timestamp{
		Seconds:     ptp.NewPTPSeconds(t),
		Nanoseconds: uint32(t.Nanosecond()),
	}
}

func durationFromNs(ns float64) time.Duration {
	return time.Duration(ns)
}
