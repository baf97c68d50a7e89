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

package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/parca-dev/p1bench/pkg/calibrate"
	"github.com/parca-dev/p1bench/pkg/report"
	"github.com/parca-dev/p1bench/pkg/sampler"
	"github.com/parca-dev/p1bench/pkg/workload"
)

const mib = 1024 * 1024

// Config holds everything a benchmark run needs.
type Config struct {
	Target   time.Duration
	MaxRuns  int
	Verbose  bool
	Terminal bool
	Workload workload.Spec

	ProbeDuration       time.Duration
	CalibrationRuns     int
	CalibrationAttempts uint64

	// Usage defaults to getrusage when nil.
	Usage sampler.UsageReader
}

// Benchmark drives one allocate, calibrate, sample and report cycle,
// writing its phases to out.
type Benchmark struct {
	logger log.Logger
	out    io.Writer
	cfg    Config

	calibrator *calibrate.Calibrator
	sampler    *sampler.Sampler
	reporter   *report.Reporter

	stopping *atomic.Bool
}

func New(logger log.Logger, reg prometheus.Registerer, out io.Writer, cfg Config) *Benchmark {
	var opts []calibrate.Option
	if cfg.ProbeDuration > 0 {
		opts = append(opts, calibrate.WithProbeDuration(cfg.ProbeDuration))
	}
	if cfg.CalibrationRuns > 0 {
		opts = append(opts, calibrate.WithTestRuns(cfg.CalibrationRuns))
	}
	if cfg.CalibrationAttempts > 0 {
		opts = append(opts, calibrate.WithMaxAttempts(cfg.CalibrationAttempts))
	}

	return &Benchmark{
		logger:     logger,
		out:        out,
		cfg:        cfg,
		calibrator: calibrate.New(log.With(logger, "component", "calibrator"), reg, opts...),
		sampler:    sampler.New(log.With(logger, "component", "sampler"), reg, cfg.Usage, cfg.MaxRuns),
		reporter:   report.New(out),
		stopping:   atomic.NewBool(false),
	}
}

// Stop asks a running benchmark to finish after the run in flight and
// report what it has. Only the first call prints the notice.
func (b *Benchmark) Stop() {
	if b.stopping.CompareAndSwap(false, true) {
		fmt.Fprint(b.out, "stopping...\n")
	}
	b.sampler.Stop()
}

// Run executes the benchmark. Cancelling ctx behaves like Stop, except
// that nothing is printed.
func (b *Benchmark) Run(ctx context.Context) error {
	spec := b.cfg.Workload
	if spec.Kind == workload.KindMemory {
		fmt.Fprintf(b.out, "Allocating %d Mbytes...\n", spec.WorkingSetBytes/mib)
	}

	w, err := workload.Open(spec)
	if err != nil {
		return fmt.Errorf("failed to set up %s workload: %w", spec.Kind, err)
	}
	defer func() {
		if err := w.Close(); err != nil {
			level.Warn(b.logger).Log("msg", "failed to release workload", "err", err)
		}
	}()
	if spec.Kind == workload.KindMemory {
		level.Debug(b.logger).Log("msg", "working set ready", "size", humanize.IBytes(spec.WorkingSetBytes), "stride", spec.StrideBytes)
	}

	fmt.Fprintf(b.out, "Calibrating for %d ms...", b.cfg.Target.Milliseconds())
	res, err := b.calibrator.Calibrate(ctx, b.cfg.Target, w)
	if err != nil {
		fmt.Fprint(b.out, "\n")
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return b.reporter.Write(&sampler.Sample{MaxRuns: b.cfg.MaxRuns}, b.cfg.Target)
		}
		return fmt.Errorf("calibration failed: %w", err)
	}
	fmt.Fprintf(b.out, " (target iteration count: %d)\n", res.Iterations)

	progress := report.NewProgressPrinter(b.out, b.cfg.Verbose, b.cfg.Terminal)
	sample := b.sampler.Run(ctx, w, res.Iterations, progress.Print)
	progress.Finish()

	level.Debug(b.logger).Log("msg", "sampling done", "runs", sample.Runs(), "iterations", res.Iterations, "sink", workload.Sink())
	return b.reporter.Write(sample, b.cfg.Target)
}
