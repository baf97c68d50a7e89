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

// Package calibrate converts a target wall time into a fixed iteration
// count for a workload.
package calibrate

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/parca-dev/p1bench/pkg/workload"
)

const (
	DefaultProbeDuration = 100 * time.Millisecond
	DefaultTestRuns      = 5
	DefaultMaxAttempts   = 3
)

var (
	ErrZeroTarget      = errors.New("target duration must be > 0")
	ErrTimerResolution = errors.New("timer resolution insufficient to calibrate")
	ErrOverflow        = errors.New("calibrated iteration count overflows")
)

// Result of a calibration. Running the workload with Iterations
// iterations on a quiet machine takes about the target duration.
type Result struct {
	Iterations      uint64
	ProbeIterations uint64
	// Fastest refine run of ProbeIterations iterations.
	Fastest  time.Duration
	Probe    time.Duration
	Attempts int
}

type Calibrator struct {
	logger  log.Logger
	metrics *metrics

	probe       time.Duration
	testRuns    int
	maxAttempts uint64

	now func() time.Time
}

type Option func(*Calibrator)

func WithProbeDuration(d time.Duration) Option {
	return func(c *Calibrator) { c.probe = d }
}

func WithTestRuns(n int) Option {
	return func(c *Calibrator) { c.testRuns = n }
}

// WithMaxAttempts bounds how many probes are made when the refine runs are
// too short for the clock to measure. Each retry doubles the probe.
func WithMaxAttempts(n uint64) Option {
	return func(c *Calibrator) { c.maxAttempts = n }
}

func New(logger log.Logger, reg prometheus.Registerer, opts ...Option) *Calibrator {
	c := &Calibrator{
		logger:      logger,
		metrics:     newMetrics(reg),
		probe:       DefaultProbeDuration,
		testRuns:    DefaultTestRuns,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.testRuns < 1 {
		c.testRuns = 1
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	return c
}

// Calibrate returns the iteration count for which w takes about target.
// The estimate is anchored on the fastest refine run.
func (c *Calibrator) Calibrate(ctx context.Context, target time.Duration, w workload.Workload) (Result, error) {
	targetUS := target.Microseconds()
	if targetUS <= 0 {
		return Result{}, ErrZeroTarget
	}

	var (
		res   Result
		probe = c.probe
	)
	op := func() error {
		res.Attempts++
		c.metrics.attempts.Inc()

		count, err := c.Probe(ctx, probe, w)
		if err != nil {
			return backoff.Permanent(err)
		}
		fastest := c.fastest(count, w)

		res.ProbeIterations = count
		res.Fastest = fastest
		res.Probe = probe

		if fastest.Microseconds() == 0 {
			level.Debug(c.logger).Log("msg", "refine runs below clock resolution, retrying with a longer probe", "probe", probe, "iterations", count)
			probe *= 2
			return ErrTimerResolution
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, c.maxAttempts-1), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if errors.Is(err, ErrTimerResolution) {
			return res, fmt.Errorf("%w: fastest of %d runs was %v after %d attempts", ErrTimerResolution, c.testRuns, res.Fastest, res.Attempts)
		}
		return res, err
	}

	n, err := scale(res.ProbeIterations, uint64(targetUS), uint64(res.Fastest.Microseconds()))
	if err != nil {
		return res, err
	}
	res.Iterations = n

	c.metrics.probeIterations.Set(float64(res.ProbeIterations))
	c.metrics.iterations.Set(float64(res.Iterations))
	level.Debug(c.logger).Log(
		"msg", "calibrated",
		"workload", w.Name(),
		"target", target,
		"probe", res.Probe,
		"probe_iterations", res.ProbeIterations,
		"fastest", res.Fastest,
		"iterations", res.Iterations,
	)
	return res, nil
}

// Probe runs w.Spin on one worker goroutine for d and returns the number of
// iterations it completed. A zero duration returns without starting it.
func (c *Calibrator) Probe(ctx context.Context, d time.Duration, w workload.Workload) (uint64, error) {
	if d <= 0 {
		return 0, nil
	}

	var (
		running = atomic.NewBool(true)
		count   uint64
		g       errgroup.Group
	)
	g.Go(func() error {
		count = w.Spin(running)
		return nil
	})

	timer := time.NewTimer(d)
	defer timer.Stop()

	var err error
	select {
	case <-timer.C:
	case <-ctx.Done():
		err = ctx.Err()
	}
	running.Store(false)
	if werr := g.Wait(); werr != nil {
		return 0, fmt.Errorf("probe worker: %w", werr)
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (c *Calibrator) fastest(count uint64, w workload.Workload) time.Duration {
	fastest := time.Duration(1<<63 - 1)
	for i := 0; i < c.testRuns; i++ {
		start := c.now()
		w.Run(count)
		if d := c.now().Sub(start); d < fastest {
			fastest = d
		}
	}
	return fastest
}

// scale returns count*targetUS/fastestUS without intermediate overflow.
func scale(count, targetUS, fastestUS uint64) (uint64, error) {
	hi, lo := bits.Mul64(count, targetUS)
	if hi >= fastestUS {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, fastestUS)
	return q, nil
}
