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

package dataset

import (
	"time"

	ptp "github.com/openptp/ptpcore/ptp/protocol"
)

// MaxForeignMasters bounds the foreign-master list. Fixed at 16 per
// the standard's recommended default; the list never grows past it.
const MaxForeignMasters = 16

// ForeignMasterRecord is the last-received Announce from one candidate
// master, keyed by its sender port identity.
type ForeignMasterRecord struct {
	Announce       ptp.AnnounceBody
	Sender         ptp.PortIdentity
	LastAnnounceRx time.Time
}

// ForeignMasterList is a fixed-capacity, insertion-ordered table of
// foreign-master records. It never allocates past construction: the
// backing array is sized for MaxForeignMasters up front.
type ForeignMasterList struct {
	records         [MaxForeignMasters]ForeignMasterRecord
	count           int
	OverflowDropped uint64
}

// NewForeignMasterList returns an empty list.
func NewForeignMasterList() ForeignMasterList {
	return ForeignMasterList{}
}

// Len returns the number of live records.
func (l *ForeignMasterList) Len() int {
	return l.count
}

// Records returns the live records in insertion order. The returned
// slice aliases the list's backing array and is only valid until the
// next mutating call.
func (l *ForeignMasterList) Records() []ForeignMasterRecord {
	return l.records[:l.count]
}

// Upsert refreshes an existing record from the same sender, or appends
// a new one. When the list is already at capacity and the sender is
// unknown, the incoming record is dropped and OverflowDropped is
// incremented: overflow drops the newest incoming record.
func (l *ForeignMasterList) Upsert(sender ptp.PortIdentity, body ptp.AnnounceBody, rx time.Time) {
	for i := 0; i < l.count; i++ {
		if l.records[i].Sender == sender {
			l.records[i].Announce = body
			l.records[i].LastAnnounceRx = rx
			return
		}
	}
	if l.count >= MaxForeignMasters {
		l.OverflowDropped++
		return
	}
	l.records[l.count] = ForeignMasterRecord{Announce: body, Sender: sender, LastAnnounceRx: rx}
	l.count++
}

// Prune evicts records whose age exceeds timeout, compacting the
// remaining entries to keep the list dense. Returns the number of
// evicted records.
func (l *ForeignMasterList) Prune(now time.Time, timeout time.Duration) int {
	w := 0
	for i := 0; i < l.count; i++ {
		if now.Sub(l.records[i].LastAnnounceRx) > timeout {
			continue
		}
		if w != i {
			l.records[w] = l.records[i]
		}
		w++
	}
	evicted := l.count - w
	l.count = w
	return evicted
}
