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

package observability

import "sync/atomic"

// InjectedFault names one failure mode a test can force on an
// otherwise healthy hwclock.Interface without hand-writing a
// go.uber.org/mock expectation for every call site.
type InjectedFault uint32

// Recognized injected faults, one bit each so Faults can hold any
// combination.
const (
	FaultTimestampUnavailable InjectedFault = 1 << iota
	FaultHardwareError
	FaultNetworkError
	FaultClockStepRejected
	FaultFrequencyAdjustRejected
)

// Faults is a settable bit-set an hwclock.Interface implementation can
// consult before doing real work, so tests can force a specific
// failure path deterministically. The zero value injects nothing.
type Faults struct {
	bits atomic.Uint32
}

// Set enables the given faults in addition to whatever is already set.
func (f *Faults) Set(faults InjectedFault) {
	f.bits.Or(uint32(faults))
}

// Clear disables the given faults, leaving others untouched.
func (f *Faults) Clear(faults InjectedFault) {
	f.bits.And(^uint32(faults))
}

// Reset disables every injected fault.
func (f *Faults) Reset() {
	f.bits.Store(0)
}

// Has reports whether a specific fault is currently enabled.
func (f *Faults) Has(fault InjectedFault) bool {
	return f.bits.Load()&uint32(fault) != 0
}
