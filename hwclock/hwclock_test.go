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

package hwclock

import (
	"testing"

	"github.com/stretchr/testify/require"

	ptp "github.com/openptp/ptpcore/ptp/protocol"
)

func TestEventCallbacksNilSafe(t *testing.T) {
	var cb EventCallbacks
	cb.NotifyStateChange(ptp.PortStateListening, ptp.PortStateSlave)
	cb.NotifyFault("boom")
	cb.NotifySyncStatus(true, 1, 2)
}

func TestEventCallbacksDispatch(t *testing.T) {
	var gotOld, gotNew ptp.PortState
	var gotFault string
	cb := EventCallbacks{
		OnStateChange: func(old, new ptp.PortState) { gotOld, gotNew = old, new },
		OnFault:       func(d string) { gotFault = d },
	}
	cb.NotifyStateChange(ptp.PortStateListening, ptp.PortStateSlave)
	cb.NotifyFault("oops")
	require.Equal(t, ptp.PortStateListening, gotOld)
	require.Equal(t, ptp.PortStateSlave, gotNew)
	require.Equal(t, "oops", gotFault)
}

func TestTimestampUnavailableError(t *testing.T) {
	require.Equal(t, "transmit timestamp not yet available", ErrTimestampUnavailable.Error())
}
