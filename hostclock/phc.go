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

package hostclock

import (
	"github.com/openptp/ptpcore/phc"
	ptp "github.com/openptp/ptpcore/ptp/protocol"

	"github.com/openptp/ptpcore/hwclock"
)

// PHC is a hwclock.Interface backed by a NIC's PTP Hardware Clock
// device (phc.Device), for hosts with hardware timestamping.
type PHC struct {
	dev    *phc.Device
	sender Sender
	txTable
}

// NewPHC returns a PHC adapter over an already-opened device, sending
// egress bytes through sender.
func NewPHC(dev *phc.Device, sender Sender) *PHC {
	return &PHC{dev: dev, sender: sender}
}

// Send transmits message through the configured sender.
func (p *PHC) Send(message []byte, _ bool) error {
	return p.sender.Send(message)
}

// Now reads the PHC device's current time.
func (p *PHC) Now() (ptp.Timestamp, error) {
	t, err := p.dev.Time()
	if err != nil {
		return ptp.Timestamp{}, err
	}
	return toPTPTimestamp(t), nil
}

// StepClock performs an absolute clock set on the PHC device.
func (p *PHC) StepClock(offsetNs float64) error {
	return p.dev.Step(durationFromNs(offsetNs))
}

// AdjustFrequency applies a relative rate control on the PHC device.
func (p *PHC) AdjustFrequency(ppb float64) error {
	return p.dev.AdjFreq(ppb)
}

// Capabilities reports hardware timestamping support.
func (p *PHC) Capabilities() hwclock.Capability {
	return hwclock.CapabilityHardwareTimestamp
}
