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

package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openptp/ptpcore/dataset"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejectsBadDelayMechanism(t *testing.T) {
	c := DefaultConfig()
	c.DelayMechanism = "bogus"
	require.Error(t, c.Validate())
}

func TestValidateRejectsInvertedServoThresholds(t *testing.T) {
	c := DefaultConfig()
	c.Servo.UnlockThresholdNs = c.Servo.LockThresholdNs
	require.Error(t, c.Validate())
}

func TestDataSetReflectsConfig(t *testing.T) {
	c := DefaultConfig()
	c.ClockIdentity = 0xAABBCCDDEEFF0011
	c.DelayMechanism = "p2p"
	c.SlaveOnly = true

	ds := c.DataSet()
	require.EqualValues(t, c.ClockIdentity, ds.Default.ClockIdentity)
	require.True(t, ds.Default.SlaveOnly)
	require.Equal(t, dataset.DelayMechanismP2P, ds.Port.DelayMechanism)
	require.Equal(t, ds.Port.PortIdentity, ds.Parent.ParentPortIdentity)
}

func TestCoordinatorConfigReflectsServo(t *testing.T) {
	c := DefaultConfig()
	c.Servo.Kp = 0.5
	c.Servo.Ki = 0.1

	cc := c.CoordinatorConfig()
	require.Equal(t, c.AcceptanceCount, cc.AcceptanceCount)
	require.Equal(t, c.Servo.LockThresholdNs, cc.LockThresholdNs)
	require.InDelta(t, 0.5, cc.ServoCfg.PiKp, 1e-9)
	require.InDelta(t, 0.1, cc.ServoCfg.PiKi, 1e-9)
}

func TestReadYAMLMissing(t *testing.T) {
	_, err := ReadYAML("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestReadYAMLOverridesDefaults(t *testing.T) {
	f, err := os.CreateTemp("", "ptpcore-*.yaml")
	require.NoError(t, err)
	defer os.Remove(f.Name())

	_, err = f.WriteString("domain_number: 4\npriority1: 10\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c, err := ReadYAML(f.Name())
	require.NoError(t, err)
	require.EqualValues(t, 4, c.DomainNumber)
	require.EqualValues(t, 10, c.Priority1)
	// untouched fields keep their default
	require.EqualValues(t, 128, c.Priority2)
}

func TestReadINIMissing(t *testing.T) {
	_, err := ReadINI("/does/not/exist.ini")
	require.Error(t, err)
}

func TestReadINIOverridesDefaults(t *testing.T) {
	f, err := os.CreateTemp("", "ptpcore-*.ini")
	require.NoError(t, err)
	defer os.Remove(f.Name())

	_, err = f.WriteString("domain_number = 7\npriority1 = 20\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	c, err := ReadINI(f.Name())
	require.NoError(t, err)
	require.EqualValues(t, 7, c.DomainNumber)
	require.EqualValues(t, 20, c.Priority1)
}
