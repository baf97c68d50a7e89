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

package calibrate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	attempts        prometheus.Counter
	probeIterations prometheus.Gauge
	iterations      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		attempts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "p1bench_calibration_attempts_total",
			Help: "Total number of calibration probes started.",
		}),
		probeIterations: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "p1bench_calibration_probe_iterations",
			Help: "Iterations completed by the last successful calibration probe.",
		}),
		iterations: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "p1bench_calibration_iterations",
			Help: "Calibrated iteration count for the target run duration.",
		}),
	}
}
