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

// Package hwclock defines the Hardware Access Contract the core's
// coordinator requires of its host: sending/timestamping PTP messages
// and steering the local clock. The core itself never touches a
// socket or a device file; hostclock provides reference adapters that
// satisfy this interface over the kept clock/phc/timestamp packages.
package hwclock

import (
	ptp "github.com/openptp/ptpcore/ptp/protocol"
)

// Capability is a bitset of optional hardware features.
type Capability uint32

// Recognized capability bits.
const (
	CapabilityHardwareTimestamp Capability = 1 << iota
)

// Interface is the per-port hardware/host contract. All
// methods must be non-blocking; Send/GetTxTimestamp are split so a
// two-step egress message's hardware timestamp, which may not be
// available synchronously, can be polled once per tick rather than
// blocking the caller.
type Interface interface {
	// Send transmits message bytes, hinting whether the caller expects
	// a follow-up two-step timestamp delivery.
	Send(message []byte, twoStepHint bool) error

	// GetTxTimestamp returns the hardware transmit timestamp of a
	// previously sent egress message identified by messageType and
	// sequenceID, or ErrTimestampUnavailable if the hardware has not
	// yet produced one.
	GetTxTimestamp(messageType ptp.MessageType, sequenceID uint16) (ptp.Timestamp, error)

	// Now returns the current monotonic system/hardware clock reading.
	Now() (ptp.Timestamp, error)

	// StepClock performs an absolute clock set.
	StepClock(offsetNs float64) error

	// AdjustFrequency applies a relative rate control in parts per
	// billion.
	AdjustFrequency(ppb float64) error

	// Capabilities reports the optional feature bitset.
	Capabilities() Capability
}

// ErrTimestampUnavailable is returned by GetTxTimestamp when the
// hardware has not yet produced a transmit timestamp for the polled
// message. It is not itself a failure: the coordinator retries on the
// next tick.
var ErrTimestampUnavailable = errTimestampUnavailable{}

type errTimestampUnavailable struct{}

func (errTimestampUnavailable) Error() string { return "transmit timestamp not yet available" }

// EventCallbacks are the core-to-host notifications a port emits.
// Every callback is best-effort and must not block the caller.
type EventCallbacks struct {
	OnStateChange func(old, new ptp.PortState)
	OnFault       func(description string)
	OnSyncStatus  func(locked bool, offsetNs float64, meanPathDelayNs float64)
}

// NotifyStateChange invokes OnStateChange if non-nil, so callers can hold
// a partially populated EventCallbacks without nil-checking at every call
// site.
func (c EventCallbacks) NotifyStateChange(old, new ptp.PortState) {
	if c.OnStateChange != nil {
		c.OnStateChange(old, new)
	}
}

// NotifyFault invokes OnFault if non-nil.
func (c EventCallbacks) NotifyFault(description string) {
	if c.OnFault != nil {
		c.OnFault(description)
	}
}

// NotifySyncStatus invokes OnSyncStatus if non-nil.
func (c EventCallbacks) NotifySyncStatus(locked bool, offsetNs, meanPathDelayNs float64) {
	if c.OnSyncStatus != nil {
		c.OnSyncStatus(locked, offsetNs, meanPathDelayNs)
	}
}
