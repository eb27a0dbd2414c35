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

package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var descs = []*prometheus.Desc{
	prometheus.NewDesc("ptpcore_messages_dropped_total", "messages dropped before validation", nil, nil),
	prometheus.NewDesc("ptpcore_validations_failed_total", "messages that failed header or ordering validation", nil, nil),
	prometheus.NewDesc("ptpcore_bmca_selections_total", "BMCA runs", nil, nil),
	prometheus.NewDesc("ptpcore_bmca_candidate_updates_total", "foreign-master list upserts", nil, nil),
	prometheus.NewDesc("ptpcore_bmca_local_wins_total", "BMCA decisions favoring the local clock", nil, nil),
	prometheus.NewDesc("ptpcore_bmca_foreign_wins_total", "BMCA decisions favoring a foreign master", nil, nil),
	prometheus.NewDesc("ptpcore_bmca_passive_wins_total", "BMCA decisions recommending PASSIVE", nil, nil),
	prometheus.NewDesc("ptpcore_offsets_computed_total", "completed offset-from-master computations", nil, nil),
	prometheus.NewDesc("ptpcore_clock_steps_total", "servo-driven clock steps", nil, nil),
	prometheus.NewDesc("ptpcore_frequency_adjustments_total", "servo-driven frequency adjustments", nil, nil),
	prometheus.NewDesc("ptpcore_offset_from_master_ns", "most recent offset from master, nanoseconds", nil, nil),
	prometheus.NewDesc("ptpcore_mean_path_delay_ns", "most recent mean path delay, nanoseconds", nil, nil),
	prometheus.NewDesc("ptpcore_locked", "1 if the servo is in the locked state", nil, nil),
}

// Collector adapts a Counters set into a prometheus.Collector, letting
// a host register it directly on its own registry rather than scraping
// its own JSON endpoint the way ptp/sptp/stats.PrometheusExporter
// scrapes sptp's HTTP port from a separate process.
type Collector struct {
	counters *Counters
}

// NewCollector returns a Collector reading from counters on every
// scrape; it holds no state of its own.
func NewCollector(counters *Counters) *Collector {
	return &Collector{counters: counters}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.counters.Snapshot()
	locked := float64(0)
	if s.Locked {
		locked = 1
	}
	values := []float64{
		float64(s.MessagesDropped),
		float64(s.ValidationsFailed),
		float64(s.BMCASelections),
		float64(s.BMCACandidateUpdates),
		float64(s.BMCALocalWins),
		float64(s.BMCAForeignWins),
		float64(s.BMCAPassiveWins),
		float64(s.OffsetsComputed),
		float64(s.ClockSteps),
		float64(s.FrequencyAdjustments),
		float64(s.OffsetNs),
		float64(s.MeanPathDelayNs),
		locked,
	}
	for i, d := range descs {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, values[i])
	}
}

// Exporter serves a Counters set on a dedicated /metrics listener,
// grounded on ptp/sptp/stats.PrometheusExporter's registry+ListenAndServe
// shape but registering the Collector directly instead of scraping an
// intermediate HTTP JSON endpoint.
type Exporter struct {
	registry   *prometheus.Registry
	listenPort int
}

// NewExporter builds an Exporter that will listen on listenPort.
func NewExporter(counters *Counters, listenPort int) *Exporter {
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(counters))
	return &Exporter{registry: reg, listenPort: listenPort}
}

// Start blocks serving /metrics. Callers typically run it in its own
// goroutine.
func (e *Exporter) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", e.listenPort), mux))
}
