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

// Command ptpcored runs a single PTP port over plain UDP, wiring
// config, coordinator, hostclock and observability into a standing
// daemon. It is a reference host for the core library, not a
// feature-complete replacement for ptp4l/phc2sys: one port, one
// interface, E2E or P2P as configured.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openptp/ptpcore/config"
)

var (
	configFlag      string
	ifaceFlag       string
	unicastFlag     string
	hwTimestampFlag bool
	verboseFlag     bool
)

var rootCmd = &cobra.Command{
	Use:   "ptpcored",
	Short: "Run a single IEEE 1588 PTP port",
	RunE: func(_ *cobra.Command, _ []string) error {
		if verboseFlag {
			log.SetLevel(log.DebugLevel)
		}

		cfg, err := loadConfig(configFlag)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		iface, err := net.InterfaceByName(ifaceFlag)
		if err != nil {
			return fmt.Errorf("looking up interface %q: %w", ifaceFlag, err)
		}

		var dest net.IP
		if unicastFlag != "" {
			dest = net.ParseIP(unicastFlag)
			if dest == nil {
				return fmt.Errorf("invalid -unicast address %q", unicastFlag)
			}
		}

		d, err := newDaemon(cfg, iface, dest, hwTimestampFlag)
		if err != nil {
			return fmt.Errorf("starting daemon: %w", err)
		}
		defer d.Close()

		go d.exporter.Start()

		if supported, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
			log.Warningf("sd_notify failed: %v", err)
		} else if !supported {
			log.Debug("sd_notify not supported, skipping readiness notification")
		}

		return d.Run()
	},
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.ReadYAML(path)
}

func init() {
	rootCmd.Flags().StringVar(&configFlag, "config", "", "path to a YAML config file (defaults applied when empty)")
	rootCmd.Flags().StringVar(&ifaceFlag, "iface", "eth0", "network interface to run the port on")
	rootCmd.Flags().StringVar(&unicastFlag, "unicast", "", "send to this unicast address instead of the PTP-primary multicast group")
	rootCmd.Flags().BoolVar(&hwTimestampFlag, "hw-timestamp", false, "request hardware timestamping if the interface supports it")
	rootCmd.Flags().BoolVar(&verboseFlag, "verbose", false, "verbose logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
