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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ptp "github.com/openptp/ptpcore/ptp/protocol"
)

func testSet() *Set {
	return New(
		DefaultDS{
			ClockIdentity: ptp.ClockIdentity(0x1122334455667788),
			NumberPorts:   1,
			ClockQuality:  ptp.ClockQuality{ClockClass: 248, ClockAccuracy: ptp.ClockAccuracyUnknown},
			Priority1:     128,
			Priority2:     128,
		},
		PortDS{
			PortIdentity:           ptp.PortIdentity{ClockIdentity: ptp.ClockIdentity(0x1122334455667788), PortNumber: 1},
			AnnounceReceiptTimeout: 3,
			LogAnnounceInterval:    1,
		},
		TimePropertiesDS{PTPTimescale: true},
	)
}

func TestResetParentToSelf(t *testing.T) {
	s := testSet()
	require.Equal(t, s.Default.ClockIdentity, s.Parent.GrandmasterIdentity)
	require.EqualValues(t, 0, s.Current.StepsRemoved)

	s.Parent.GrandmasterIdentity = ptp.ClockIdentity(0xAABBCCDDEEFF0011)
	s.Current.StepsRemoved = 4
	s.ResetParentToSelf()
	require.Equal(t, s.Default.ClockIdentity, s.Parent.GrandmasterIdentity)
	require.Equal(t, s.Default.ClockQuality, s.Parent.GrandmasterClockQuality)
	require.EqualValues(t, 0, s.Current.StepsRemoved)
}

func TestAnnounceTimeout(t *testing.T) {
	p := PortDS{AnnounceReceiptTimeout: 3, LogAnnounceInterval: 1}
	require.Equal(t, 6*time.Second, p.AnnounceTimeout())
}

func TestForeignMasterListUpsertAndOverflow(t *testing.T) {
	l := NewForeignMasterList()
	now := time.Unix(1000, 0)
	for i := 0; i < MaxForeignMasters; i++ {
		sender := ptp.PortIdentity{ClockIdentity: ptp.ClockIdentity(i + 1), PortNumber: 1}
		l.Upsert(sender, ptp.AnnounceBody{StepsRemoved: uint16(i)}, now)
	}
	require.Equal(t, MaxForeignMasters, l.Len())
	require.Zero(t, l.OverflowDropped)

	overflow := ptp.PortIdentity{ClockIdentity: ptp.ClockIdentity(999), PortNumber: 1}
	l.Upsert(overflow, ptp.AnnounceBody{}, now)
	require.Equal(t, MaxForeignMasters, l.Len())
	require.EqualValues(t, 1, l.OverflowDropped)

	// refreshing an existing sender must not count as overflow
	existing := ptp.PortIdentity{ClockIdentity: ptp.ClockIdentity(1), PortNumber: 1}
	l.Upsert(existing, ptp.AnnounceBody{StepsRemoved: 42}, now.Add(time.Second))
	require.Equal(t, MaxForeignMasters, l.Len())
	require.EqualValues(t, 1, l.OverflowDropped)
	require.EqualValues(t, 42, l.Records()[0].Announce.StepsRemoved)
}

func TestForeignMasterListPrune(t *testing.T) {
	l := NewForeignMasterList()
	base := time.Unix(1000, 0)
	l.Upsert(ptp.PortIdentity{ClockIdentity: 1, PortNumber: 1}, ptp.AnnounceBody{}, base)
	l.Upsert(ptp.PortIdentity{ClockIdentity: 2, PortNumber: 1}, ptp.AnnounceBody{}, base.Add(5*time.Second))
	l.Upsert(ptp.PortIdentity{ClockIdentity: 3, PortNumber: 1}, ptp.AnnounceBody{}, base.Add(9*time.Second))

	evicted := l.Prune(base.Add(10*time.Second), 6*time.Second)
	require.Equal(t, 1, evicted)
	require.Equal(t, 2, l.Len())
	for _, r := range l.Records() {
		require.NotEqual(t, ptp.ClockIdentity(1), r.Sender.ClockIdentity)
	}
}

func TestQualityEstimatorUnknownUntilTwoSamples(t *testing.T) {
	q := NewQualityEstimator()
	require.EqualValues(t, 0xffff, q.OffsetScaledLogVariance())
	q.Add(10)
	require.EqualValues(t, 0xffff, q.OffsetScaledLogVariance())
	q.Add(-10)
	require.Less(t, q.OffsetScaledLogVariance(), uint16(0xffff))
}
