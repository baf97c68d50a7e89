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
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/parca-dev/p1bench/pkg/workload"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

type fakeWorkload struct {
	clock     *fakeClock
	durations []time.Duration
	runs      int
}

func (w *fakeWorkload) Name() string { return "fake" }

func (w *fakeWorkload) Run(count uint64) uint64 {
	w.clock.t = w.clock.t.Add(w.durations[w.runs%len(w.durations)])
	w.runs++
	return count
}

func (w *fakeWorkload) Spin(*atomic.Bool) uint64 { return 0 }

func (w *fakeWorkload) Close() error { return nil }

// fakeUsage returns a usage snapshot that grows by step on every read and
// fails the reads listed in fail.
type fakeUsage struct {
	cur   Usage
	step  Usage
	reads int
	fail  map[int]bool
}

func (u *fakeUsage) Read() (Usage, error) {
	defer func() { u.reads++ }()
	if u.fail[u.reads] {
		return Usage{}, errors.New("usage unavailable")
	}
	u.cur.User += u.step.User
	u.cur.Sys += u.step.Sys
	u.cur.InvoluntaryCtxSwitches += u.step.InvoluntaryCtxSwitches
	return u.cur, nil
}

func newTestSampler(t *testing.T, clock *fakeClock, usage UsageReader, maxRuns int) *Sampler {
	t.Helper()
	s := New(log.NewNopLogger(), prometheus.NewRegistry(), usage, maxRuns)
	s.now = clock.now
	return s
}

func TestRunRecordsEveryRun(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := &fakeWorkload{clock: clock, durations: []time.Duration{100 * time.Millisecond, 110 * time.Millisecond, 99 * time.Millisecond, 150 * time.Millisecond}}
	usage := &fakeUsage{step: Usage{User: 40 * time.Millisecond, Sys: 5 * time.Millisecond, InvoluntaryCtxSwitches: 1}}
	s := newTestSampler(t, clock, usage, 4)

	var progress []Progress
	sample := s.Run(context.Background(), w, 12345, func(p Progress) {
		progress = append(progress, p)
	})

	require.Equal(t, uint64(12345), sample.Iterations)
	require.Equal(t, 4, sample.Runs())
	require.Equal(t, 99*time.Millisecond, sample.Fastest)
	require.Equal(t, 150*time.Millisecond, sample.Slowest)
	require.Equal(t, []uint64{100_000, 110_000, 99_000, 150_000}, sample.WallMicros())

	for _, r := range sample.Records {
		require.True(t, r.UsageAvailable())
		require.LessOrEqual(t, sample.Fastest, r.Wall)
		require.GreaterOrEqual(t, sample.Slowest, r.Wall)
		require.Equal(t, 40*time.Millisecond, r.User)
		require.Equal(t, 5*time.Millisecond, r.Sys)
		require.Equal(t, int64(1), r.InvoluntaryCtxSwitches)
	}

	require.Len(t, progress, 4)
	require.False(t, progress[0].HasDiff)
	require.True(t, progress[1].HasDiff)
	require.InDelta(t, 10.0, progress[1].DiffPct, 1e-9)
	require.InDelta(t, -10.0, progress[2].DiffPct, 1e-9)
	require.Equal(t, 3, progress[3].Run)
	require.Equal(t, 4, progress[3].MaxRuns)
	require.Equal(t, 459*time.Millisecond, progress[3].Elapsed)

	require.Equal(t, float64(4), testutil.ToFloat64(s.metrics.runs))
	require.Equal(t, float64(4), testutil.ToFloat64(s.metrics.involuntaryCtxSwitches))
	require.Equal(t, 0.099, testutil.ToFloat64(s.metrics.fastest))
	require.Equal(t, 0.15, testutil.ToFloat64(s.metrics.slowest))
}

func TestRunStopFinishesCurrentRun(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := &fakeWorkload{clock: clock, durations: []time.Duration{time.Millisecond}}
	s := newTestSampler(t, clock, &fakeUsage{}, 1000)

	sample := s.Run(context.Background(), w, 1, func(p Progress) {
		if p.Run == 1 {
			s.Stop()
		}
	})
	require.True(t, s.Stopped())
	require.Equal(t, 2, sample.Runs())
	require.Equal(t, 2, w.runs)
}

func TestRunStoppedBeforeStart(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := &fakeWorkload{clock: clock, durations: []time.Duration{time.Millisecond}}
	s := newTestSampler(t, clock, &fakeUsage{}, 10)
	s.Stop()

	sample := s.Run(context.Background(), w, 1, nil)
	require.Equal(t, 0, sample.Runs())
	require.Empty(t, sample.WallMicros())
	require.Equal(t, 0, w.runs)
}

func TestRunZeroMaxRuns(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := &fakeWorkload{clock: clock, durations: []time.Duration{time.Millisecond}}
	s := newTestSampler(t, clock, &fakeUsage{}, 0)

	sample := s.Run(context.Background(), w, 1, func(Progress) {
		t.Fatal("no progress expected")
	})
	require.NotNil(t, sample)
	require.Equal(t, 0, sample.Runs())
	require.Equal(t, time.Duration(0), sample.Fastest)
}

func TestRunContextCanceledBetweenRuns(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := &fakeWorkload{clock: clock, durations: []time.Duration{time.Millisecond}}
	s := newTestSampler(t, clock, &fakeUsage{}, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sample := s.Run(ctx, w, 1, func(p Progress) {
		if p.Run == 2 {
			cancel()
		}
	})
	require.Equal(t, 3, sample.Runs())
}

func TestRunUsageFailureKeepsWallTime(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := &fakeWorkload{clock: clock, durations: []time.Duration{2 * time.Millisecond, 3 * time.Millisecond}}
	// Reads 0 and 1 surround run 0, reads 2 and 3 surround run 1.
	usage := &fakeUsage{step: Usage{User: time.Millisecond}, fail: map[int]bool{3: true}}
	s := newTestSampler(t, clock, usage, 2)

	sample := s.Run(context.Background(), w, 1, nil)
	require.Equal(t, 2, sample.Runs())
	require.True(t, sample.Records[0].UsageAvailable())
	require.False(t, sample.Records[1].UsageAvailable())
	require.Equal(t, 3*time.Millisecond, sample.Records[1].Wall)
	require.Equal(t, time.Duration(0), sample.Records[1].User)
	require.Equal(t, float64(1), testutil.ToFloat64(s.metrics.usageReadErrors))
}

func TestRunRealWorkload(t *testing.T) {
	s := New(log.NewNopLogger(), nil, RusageReader{}, 3)
	sample := s.Run(context.Background(), workload.NewCPU(), 100_000, nil)
	require.Equal(t, 3, sample.Runs())
	for _, r := range sample.Records {
		require.Positive(t, r.Wall)
		require.True(t, r.UsageAvailable())
		require.GreaterOrEqual(t, r.InvoluntaryCtxSwitches, int64(0))
	}
}

func TestRecordWallMicros(t *testing.T) {
	require.Equal(t, uint64(1), Record{Wall: 1999 * time.Nanosecond}.WallMicros())
	require.Equal(t, uint64(0), Record{Wall: -time.Second}.WallMicros())
	require.Equal(t, uint64(math.MaxInt64/1000), Record{Wall: math.MaxInt64}.WallMicros())
}
