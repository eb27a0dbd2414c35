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
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	ptp "github.com/openptp/ptpcore/ptp/protocol"

	"github.com/openptp/ptpcore/observability"
)

var stateColor = map[ptp.PortState]func(string, ...any) string{
	ptp.PortStateSlave:        color.GreenString,
	ptp.PortStateGrandMaster:  color.GreenString,
	ptp.PortStateMaster:       color.GreenString,
	ptp.PortStateUncalibrated: color.YellowString,
	ptp.PortStatePreMaster:    color.YellowString,
	ptp.PortStateListening:    color.YellowString,
	ptp.PortStateFaulty:       color.RedString,
	ptp.PortStateDisabled:     color.RedString,
}

func colorState(s ptp.PortState) string {
	if f, ok := stateColor[s]; ok {
		return f("%s", s)
	}
	return s.String()
}

// printStatus renders a single-row status table of the port's current
// state and counters, matching cmd/ptpcheck's sources table layout.
func printStatus(state ptp.PortState, snap observability.Snapshot) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Printf("state=%s locked=%v offset_ns=%d mean_path_delay_ns=%d\n",
			state, snap.Locked, snap.OffsetNs, snap.MeanPathDelayNs)
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetColWidth(16)
	table.SetHeader([]string{"state", "locked", "offset(ns)", "delay(ns)", "steps", "freq adj", "dropped"})
	table.Append([]string{
		colorState(state),
		fmt.Sprintf("%v", snap.Locked),
		fmt.Sprintf("%d", snap.OffsetNs),
		fmt.Sprintf("%d", snap.MeanPathDelayNs),
		fmt.Sprintf("%d", snap.ClockSteps),
		fmt.Sprintf("%d", snap.FrequencyAdjustments),
		fmt.Sprintf("%d", snap.MessagesDropped),
	})
	table.Render()
}

func logStateTransition(old, new ptp.PortState) {
	fmt.Fprintf(os.Stderr, "%s -> %s\n", colorState(old), colorState(new))
}
