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

// Package config is the plain-struct configuration surface a host
// fills in (from YAML, INI, or its own flags) to build both a
// dataset.Set and a coordinator.Config for one port.
package config

import (
	"fmt"
	"time"

	ptp "github.com/openptp/ptpcore/ptp/protocol"

	"github.com/openptp/ptpcore/coordinator"
	"github.com/openptp/ptpcore/dataset"
	"github.com/openptp/ptpcore/servo"
)

// ServoConfig carries the clock servo's tunables.
type ServoConfig struct {
	Kp                float64 `yaml:"kp" ini:"kp"`
	Ki                float64 `yaml:"ki" ini:"ki"`
	LockThresholdNs    int64   `yaml:"lock_threshold_ns" ini:"lock_threshold_ns"`
	UnlockThresholdNs  int64   `yaml:"unlock_threshold_ns" ini:"unlock_threshold_ns"`
	LockRequiredSamples int    `yaml:"lock_required_samples" ini:"lock_required_samples"`
	MaxFrequencyPPB   float64 `yaml:"max_frequency_ppb" ini:"max_frequency_ppb"`
	// IntegralLimit maps onto the PI controller's normalized ki clamp
	// (servo.PiServoCfg.PiKiNormMax); there is no separate raw
	// integral-windup limit, only the ki-normalized one.
	IntegralLimit float64 `yaml:"integral_limit" ini:"integral_limit"`
}

// Validate reports whether s is usable.
func (s ServoConfig) Validate() error {
	if s.Kp <= 0 || s.Ki <= 0 {
		return fmt.Errorf("kp and ki must be positive")
	}
	if s.LockThresholdNs <= 0 || s.UnlockThresholdNs <= s.LockThresholdNs {
		return fmt.Errorf("unlock_threshold_ns must be greater than lock_threshold_ns")
	}
	if s.LockRequiredSamples <= 0 {
		return fmt.Errorf("lock_required_samples must be positive")
	}
	if s.MaxFrequencyPPB <= 0 {
		return fmt.Errorf("max_frequency_ppb must be positive")
	}
	return nil
}

// Config is one port's full configuration surface: the static
// dataset fields plus the coordinator tunables not
// captured by the data sets themselves.
type Config struct {
	DomainNumber  uint8  `yaml:"domain_number" ini:"domain_number"`
	ClockIdentity uint64 `yaml:"clock_identity" ini:"clock_identity"`
	NumberPorts   uint16 `yaml:"number_ports" ini:"number_ports"`
	PortNumber    uint16 `yaml:"port_number" ini:"port_number"`
	SlaveOnly     bool   `yaml:"slave_only" ini:"slave_only"`

	Priority1               uint8  `yaml:"priority1" ini:"priority1"`
	Priority2               uint8  `yaml:"priority2" ini:"priority2"`
	ClockClass              uint8  `yaml:"clock_class" ini:"clock_class"`
	ClockAccuracy           uint8  `yaml:"clock_accuracy" ini:"clock_accuracy"`
	OffsetScaledLogVariance uint16 `yaml:"offset_scaled_log_variance" ini:"offset_scaled_log_variance"`

	LogAnnounceInterval     int8   `yaml:"log_announce_interval" ini:"log_announce_interval"`
	AnnounceReceiptTimeout  uint8  `yaml:"announce_receipt_timeout" ini:"announce_receipt_timeout"`
	LogSyncInterval         int8   `yaml:"log_sync_interval" ini:"log_sync_interval"`
	LogMinDelayReqInterval  int8   `yaml:"log_min_delay_req_interval" ini:"log_min_delay_req_interval"`
	LogMinPdelayReqInterval int8   `yaml:"log_min_pdelay_req_interval" ini:"log_min_pdelay_req_interval"`
	DelayMechanism          string `yaml:"delay_mechanism" ini:"delay_mechanism"` // "e2e" or "p2p"

	AcceptanceCount        int           `yaml:"acceptance_count" ini:"acceptance_count"`
	RoundingCompensation   bool          `yaml:"rounding_compensation" ini:"rounding_compensation"`
	SyncGraceWindow        time.Duration `yaml:"sync_grace_window" ini:"sync_grace_window"`
	PdelayGraceWindow      time.Duration `yaml:"pdelay_grace_window" ini:"pdelay_grace_window"`
	HoldoverGraceWindow    time.Duration `yaml:"holdover_grace_window" ini:"holdover_grace_window"`

	Servo ServoConfig `yaml:"servo" ini:"servo"`

	MetricsListenAddr string `yaml:"metrics_listen_addr" ini:"metrics_listen_addr"`
}

// DefaultConfig returns a Config with sane single-port leaf-clock
// defaults, mirroring DefaultConfig's role in
// ptp/sptp/client/config.go.
func DefaultConfig() *Config {
	return &Config{
		DomainNumber:            0,
		NumberPorts:             1,
		PortNumber:              1,
		Priority1:               128,
		Priority2:               128,
		ClockClass:              248,
		ClockAccuracy:           0xFE,
		OffsetScaledLogVariance: 0xFFFF,
		LogAnnounceInterval:     1,
		AnnounceReceiptTimeout:  3,
		LogSyncInterval:         0,
		LogMinDelayReqInterval:  0,
		LogMinPdelayReqInterval: 0,
		DelayMechanism:          "e2e",
		AcceptanceCount:         4,
		RoundingCompensation:    true,
		SyncGraceWindow:         2 * time.Second,
		PdelayGraceWindow:       2 * time.Second,
		HoldoverGraceWindow:     10 * time.Second,
		Servo: ServoConfig{
			Kp:                  0.7,
			Ki:                  0.3,
			LockThresholdNs:      1000,
			UnlockThresholdNs:    10000,
			LockRequiredSamples: 4,
			MaxFrequencyPPB:     900000,
			IntegralLimit:       1.0,
		},
		MetricsListenAddr: ":9273",
	}
}

// Validate reports whether c is internally consistent.
func (c *Config) Validate() error {
	if c.NumberPorts == 0 {
		return fmt.Errorf("number_ports must be at least 1")
	}
	if c.PortNumber == 0 {
		return fmt.Errorf("port_number must be at least 1")
	}
	if c.DelayMechanism != "e2e" && c.DelayMechanism != "p2p" {
		return fmt.Errorf("delay_mechanism must be %q or %q", "e2e", "p2p")
	}
	if c.AcceptanceCount <= 0 {
		return fmt.Errorf("acceptance_count must be positive")
	}
	if c.SyncGraceWindow <= 0 || c.PdelayGraceWindow <= 0 || c.HoldoverGraceWindow <= 0 {
		return fmt.Errorf("grace windows must be positive")
	}
	return c.Servo.Validate()
}

func (c *Config) delayMechanism() dataset.DelayMechanism {
	if c.DelayMechanism == "p2p" {
		return dataset.DelayMechanismP2P
	}
	return dataset.DelayMechanismE2E
}

// DataSet builds the dataset.Set this Config describes, with
// parentDS already reset to self (dataset.New's invariant).
func (c *Config) DataSet() *dataset.Set {
	def := dataset.DefaultDS{
		ClockIdentity: ptp.ClockIdentity(c.ClockIdentity),
		NumberPorts:   c.NumberPorts,
		ClockQuality: ptp.ClockQuality{
			ClockClass:              ptp.ClockClass(c.ClockClass),
			ClockAccuracy:           ptp.ClockAccuracy(c.ClockAccuracy),
			OffsetScaledLogVariance: c.OffsetScaledLogVariance,
		},
		Priority1:    c.Priority1,
		Priority2:    c.Priority2,
		DomainNumber: c.DomainNumber,
		SlaveOnly:    c.SlaveOnly,
	}
	port := dataset.PortDS{
		PortIdentity: ptp.PortIdentity{
			ClockIdentity: ptp.ClockIdentity(c.ClockIdentity),
			PortNumber:    c.PortNumber,
		},
		LogAnnounceInterval:     ptp.LogInterval(c.LogAnnounceInterval),
		AnnounceReceiptTimeout:  c.AnnounceReceiptTimeout,
		LogSyncInterval:         ptp.LogInterval(c.LogSyncInterval),
		LogMinDelayReqInterval:  ptp.LogInterval(c.LogMinDelayReqInterval),
		LogMinPdelayReqInterval: ptp.LogInterval(c.LogMinPdelayReqInterval),
		DelayMechanism:          c.delayMechanism(),
	}
	return dataset.New(def, port, dataset.TimePropertiesDS{PTPTimescale: true})
}

// CoordinatorConfig builds the coordinator.Config this Config
// describes, falling back to the PI servo's own defaults for anything
// the host has not overridden via Servo.
func (c *Config) CoordinatorConfig() coordinator.Config {
	piCfg := servo.DefaultPiServoCfg()
	piCfg.PiKp = c.Servo.Kp
	piCfg.PiKi = c.Servo.Ki
	piCfg.PiKiNormMax = c.Servo.IntegralLimit

	return coordinator.Config{
		AcceptanceCount:     c.AcceptanceCount,
		BankerRounding:      c.RoundingCompensation,
		SyncGraceWindow:     c.SyncGraceWindow,
		PdelayGraceWindow:   c.PdelayGraceWindow,
		HoldoverGraceWindow: c.HoldoverGraceWindow,
		LockThresholdNs:     c.Servo.LockThresholdNs,
		UnlockThresholdNs:   c.Servo.UnlockThresholdNs,
		LockRequiredSamples: c.Servo.LockRequiredSamples,
		MaxFrequencyPPB:     c.Servo.MaxFrequencyPPB,
		ServoCfg:            piCfg,
	}
}
