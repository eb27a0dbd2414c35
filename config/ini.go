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
	"fmt"

	"github.com/go-ini/ini"
)

// ReadINI reads a Config from a ptp4l.conf-style INI file: top-level
// keys in the default section, servo tunables under a [servo]
// section. This is an ecosystem-library convenience for operators
// migrating off linuxptp's config format, following go-ini's own
// struct-mapping idiom.
func ReadINI(path string) (*Config, error) {
	c := DefaultConfig()
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	if err := f.MapTo(c); err != nil {
		return nil, fmt.Errorf("mapping %q: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validating %q: %w", path, err)
	}
	return c, nil
}
