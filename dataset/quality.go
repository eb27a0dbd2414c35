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
	"math"

	"github.com/eclesh/welford"
)

// QualityEstimator tracks a running estimate of offsetScaledLogVariance
// from observed offset samples (in nanoseconds), so a free-running or
// locked ordinary clock can report a live clockQuality instead of a
// fixed constant. This is a practical approximation of the Allan
// deviation statistic IEEE 1588-2019 Annex uses for PAR/GVAR, not a
// bit-exact implementation of it.
type QualityEstimator struct {
	w *welford.Stats
}

// NewQualityEstimator returns an estimator with no samples yet.
func NewQualityEstimator() *QualityEstimator {
	return &QualityEstimator{w: welford.New()}
}

// Add records one offset sample in nanoseconds.
func (q *QualityEstimator) Add(offsetNs float64) {
	q.w.Add(offsetNs)
}

// Reset discards accumulated samples, used when the servo resets after
// a step or a holdover recovery.
func (q *QualityEstimator) Reset() {
	q.w = welford.New()
}

// OffsetScaledLogVariance maps the running standard deviation to the
// log-scaled 16-bit variance field (Table 14): higher stddev yields a
// larger (worse) value. Returns the "unknown" sentinel until at least
// two samples have been observed.
func (q *QualityEstimator) OffsetScaledLogVariance() uint16 {
	if q.w.Count() < 2 {
		return 0xffff
	}
	stddev := q.w.Stddev()
	if stddev <= 0 || math.IsNaN(stddev) {
		return 0
	}
	// log2(stddev_ns^2) multiplied by 2^8, giving the field's
	// fixed-point log-scaled stability metric (8 fractional bits),
	// clamped to [0, 0xfffe] below.
	v := math.Log2(stddev*stddev) * float64(1<<8)
	if v < 0 {
		return 0
	}
	if v > 0xfffe {
		return 0xfffe
	}
	return uint16(v)
}
