// Copyright 2024 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sampler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	runs                   prometheus.Counter
	runDuration            prometheus.Histogram
	involuntaryCtxSwitches prometheus.Counter
	usageReadErrors        prometheus.Counter
	fastest                prometheus.Gauge
	slowest                prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		runs: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "p1bench_runs_total",
			Help: "Total number of completed workload runs.",
		}),
		runDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:                        "p1bench_run_duration_seconds",
			Help:                        "Wall time of a single workload run.",
			Buckets:                     prometheus.ExponentialBuckets(0.001, 2, 14),
			NativeHistogramBucketFactor: 1.1,
		}),
		involuntaryCtxSwitches: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "p1bench_involuntary_context_switches_total",
			Help: "Involuntary context switches observed during workload runs.",
		}),
		usageReadErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "p1bench_usage_read_errors_total",
			Help: "Total number of runs whose resource usage could not be read.",
		}),
		fastest: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "p1bench_fastest_run_seconds",
			Help: "Wall time of the fastest run so far.",
		}),
		slowest: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "p1bench_slowest_run_seconds",
			Help: "Wall time of the slowest run so far.",
		}),
	}
}
