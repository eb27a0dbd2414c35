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

package handler

import (
	ptp "github.com/openptp/ptpcore/ptp/protocol"

	"github.com/openptp/ptpcore/fault"
)

// ValidateHeader checks the common fields every ingress message must
// satisfy before any type-specific handling runs: supported major
// version and matching domain. Port identity/transport checks are the
// host's responsibility (this core has no transport mapping).
func ValidateHeader(h *ptp.Header, wantDomain uint8) error {
	if h.Version&ptp.MajorVersionMask != ptp.MajorVersion {
		return fault.New(fault.InvalidVersion, "unsupported PTP major version %d", h.Version&ptp.MajorVersionMask)
	}
	if h.DomainNumber != wantDomain {
		return fault.New(fault.InvalidDomain, "domain %d does not match configured domain %d", h.DomainNumber, wantDomain)
	}
	return nil
}

// maxNanoseconds is the exclusive upper bound a Timestamp's
// nanosecondsField may hold: it counts nanoseconds within a second, so
// 10^9 and above can never be valid (IEEE 1588-2019 Table 5).
const maxNanoseconds = 1_000_000_000

// maxStepsRemoved is the largest stepsRemoved an Announce's
// grandmaster-hop count may carry (IEEE 1588-2019 Table 43).
const maxStepsRemoved = 255

// ValidateTimestamp rejects a Timestamp whose nanoseconds field falls
// outside the second it is meant to be a sub-second offset into.
func ValidateTimestamp(ts ptp.Timestamp) error {
	if ts.Nanoseconds >= maxNanoseconds {
		return fault.New(fault.InvalidLength, "timestamp nanoseconds %d out of range [0, %d)", ts.Nanoseconds, maxNanoseconds)
	}
	return nil
}

// ValidateAnnounceBody rejects an Announce whose stepsRemoved exceeds
// what the field is permitted to carry, or whose origin timestamp is
// out of range.
func ValidateAnnounceBody(body *ptp.AnnounceBody) error {
	if body.StepsRemoved > maxStepsRemoved {
		return fault.New(fault.InvalidLength, "stepsRemoved %d exceeds %d", body.StepsRemoved, maxStepsRemoved)
	}
	return ValidateTimestamp(body.OriginTimestamp)
}

// ValidateOrdering reports an ordering fault (T2<T1 or T4<T3) without
// aborting the computation: a violation logs a warning and
// increments ValidationsFailed but the caller proceeds regardless.
func ValidateOrdering(violated bool) error {
	if !violated {
		return nil
	}
	return fault.New(fault.OrderingViolation, "timestamp ordering violated")
}
