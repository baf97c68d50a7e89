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

// Package sampler executes a calibrated workload repeatedly and records the
// wall time and resource usage of every run.
package sampler

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/parca-dev/p1bench/pkg/workload"
)

// Records are preallocated up to this many runs; larger samples grow.
const maxPrealloc = 1 << 16

// Record is one run. User, Sys and InvoluntaryCtxSwitches are only
// meaningful when UsageErr is nil.
type Record struct {
	Wall                   time.Duration
	User                   time.Duration
	Sys                    time.Duration
	InvoluntaryCtxSwitches int64
	UsageErr               error
}

func (r Record) UsageAvailable() bool { return r.UsageErr == nil }

// WallMicros is the wall time truncated to microseconds.
func (r Record) WallMicros() uint64 {
	if r.Wall <= 0 {
		return 0
	}
	return uint64(r.Wall.Microseconds())
}

// Sample is the ordered sequence of runs of one invocation.
type Sample struct {
	Iterations uint64
	MaxRuns    int
	Records    []Record
	Fastest    time.Duration
	Slowest    time.Duration
}

func (s *Sample) Runs() int { return len(s.Records) }

// WallMicros returns a copy of the per-run wall times in run order.
func (s *Sample) WallMicros() []uint64 {
	walls := make([]uint64, len(s.Records))
	for i, r := range s.Records {
		walls[i] = r.WallMicros()
	}
	return walls
}

func (s *Sample) add(r Record) {
	if len(s.Records) == 0 || r.Wall < s.Fastest {
		s.Fastest = r.Wall
	}
	if r.Wall > s.Slowest {
		s.Slowest = r.Wall
	}
	s.Records = append(s.Records, r)
}

// Progress is reported after every run.
type Progress struct {
	// Run is the zero-based index of the run that just finished.
	Run     int
	MaxRuns int
	Record  Record
	// Elapsed is the time since sampling started.
	Elapsed time.Duration
	// DiffPct compares this run with the previous one. Only set when
	// HasDiff is true, which is the case from the second run on.
	DiffPct float64
	HasDiff bool
}

type Sampler struct {
	logger  log.Logger
	metrics *metrics
	usage   UsageReader
	maxRuns int

	stop *atomic.Bool
	now  func() time.Time
}

func New(logger log.Logger, reg prometheus.Registerer, usage UsageReader, maxRuns int) *Sampler {
	if usage == nil {
		usage = RusageReader{}
	}
	return &Sampler{
		logger:  logger,
		metrics: newMetrics(reg),
		usage:   usage,
		maxRuns: maxRuns,
		stop:    atomic.NewBool(false),
		now:     time.Now,
	}
}

// Stop makes Run return once the run in flight has been recorded. It is
// safe to call from any goroutine, before or during Run.
func (s *Sampler) Stop() {
	s.stop.Store(true)
}

func (s *Sampler) Stopped() bool {
	return s.stop.Load()
}

// Run executes w.Run(iterations) up to maxRuns times on the calling
// goroutine. Stop and ctx are only checked between runs.
func (s *Sampler) Run(ctx context.Context, w workload.Workload, iterations uint64, onProgress func(Progress)) *Sample {
	sample := &Sample{
		Iterations: iterations,
		MaxRuns:    s.maxRuns,
		Records:    make([]Record, 0, min(max(s.maxRuns, 0), maxPrealloc)),
	}

	start := s.now()
	var last time.Duration
	for i := 0; i < s.maxRuns; i++ {
		if s.stop.Load() || ctx.Err() != nil {
			break
		}

		r := s.measure(w, iterations)
		sample.add(r)
		s.observe(r, sample)

		if onProgress == nil {
			last = r.Wall
			continue
		}
		p := Progress{
			Run:     i,
			MaxRuns: s.maxRuns,
			Record:  r,
			Elapsed: s.now().Sub(start),
		}
		if i > 0 && last > 0 {
			p.HasDiff = true
			p.DiffPct = 100 * (float64(r.Wall)/float64(last) - 1)
		}
		last = r.Wall
		onProgress(p)
	}

	level.Debug(s.logger).Log("msg", "sampling finished", "runs", sample.Runs(), "max_runs", s.maxRuns, "fastest", sample.Fastest, "slowest", sample.Slowest)
	return sample
}

func (s *Sampler) measure(w workload.Workload, iterations uint64) Record {
	before, berr := s.usage.Read()
	t0 := s.now()
	w.Run(iterations)
	t1 := s.now()
	after, aerr := s.usage.Read()

	r := Record{Wall: t1.Sub(t0)}
	switch {
	case berr != nil:
		r.UsageErr = berr
	case aerr != nil:
		r.UsageErr = aerr
	default:
		d := after.Sub(before)
		r.User = d.User
		r.Sys = d.Sys
		r.InvoluntaryCtxSwitches = d.InvoluntaryCtxSwitches
	}
	return r
}

func (s *Sampler) observe(r Record, sample *Sample) {
	s.metrics.runs.Inc()
	s.metrics.runDuration.Observe(r.Wall.Seconds())
	s.metrics.fastest.Set(sample.Fastest.Seconds())
	s.metrics.slowest.Set(sample.Slowest.Seconds())
	if r.UsageErr != nil {
		s.metrics.usageReadErrors.Inc()
		level.Debug(s.logger).Log("msg", "failed to read resource usage", "err", r.UsageErr)
		return
	}
	if r.InvoluntaryCtxSwitches > 0 {
		s.metrics.involuntaryCtxSwitches.Add(float64(r.InvoluntaryCtxSwitches))
	}
}
