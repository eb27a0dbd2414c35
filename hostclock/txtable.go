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
	ptp "github.com/openptp/ptpcore/ptp/protocol"

	"github.com/openptp/ptpcore/hwclock"
)

// txTableCapacity bounds the number of outstanding transmit timestamps
// an adapter tracks at once, matching the core's no-dynamic-allocation
// resource model.
const txTableCapacity = 8

type txEntry struct {
	used        bool
	messageType ptp.MessageType
	sequenceID  uint16
	ts          ptp.Timestamp
}

// txTable is embedded by both System and PHC: it records hardware or
// software transmit timestamps as the host's transport layer obtains
// them, and serves GetTxTimestamp polls from the coordinator.
type txTable struct {
	entries [txTableCapacity]txEntry
}

// RecordTxTimestamp stores a transmit timestamp for later retrieval by
// GetTxTimestamp. Called by the host once its transport layer has read
// the hardware (or software, for one-step-incapable paths) timestamp
// of a previously sent message.
func (t *txTable) RecordTxTimestamp(messageType ptp.MessageType, sequenceID uint16, ts ptp.Timestamp) {
	for i := range t.entries {
		if !t.entries[i].used {
			t.entries[i] = txEntry{used: true, messageType: messageType, sequenceID: sequenceID, ts: ts}
			return
		}
	}
	// table full: overwrite the first slot rather than grow. A port
	// with more than txTableCapacity outstanding two-step egress
	// messages indicates the host is not draining GetTxTimestamp often
	// enough; dropping the oldest is preferable to blocking.
	t.entries[0] = txEntry{used: true, messageType: messageType, sequenceID: sequenceID, ts: ts}
}

// GetTxTimestamp implements the lookup half of the Hardware Access
// Contract's polling model: it consumes the recorded entry on a hit
// so a stale sequence number is never returned twice.
func (t *txTable) GetTxTimestamp(messageType ptp.MessageType, sequenceID uint16) (ptp.Timestamp, error) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.used && e.messageType == messageType && e.sequenceID == sequenceID {
			e.used = false
			return e.ts, nil
		}
	}
	return ptp.Timestamp{}, hwclock.ErrTimestampUnavailable
}
