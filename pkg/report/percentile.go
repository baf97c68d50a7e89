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

package report

import (
	"math"
	"math/bits"
)

// Percentile of the sorted wall times. Index follows
// runs*Rank/100 - 1, so the 50th of 5 runs is the second fastest.
type Percentile struct {
	Rank      int
	Index     int
	Value     uint64
	SlowerPct float64
}

var ranks = []struct {
	rank    int
	minRuns int
}{
	{rank: 50, minRuns: 3},
	{rank: 90, minRuns: 10},
	{rank: 99, minRuns: 100},
}

// Percentiles returns the 50th, 90th and 99th percentiles the sample is
// large enough for, followed by the 100th. sorted must be ascending.
func Percentiles(sorted []uint64, fastest uint64) []Percentile {
	runs := len(sorted)
	if runs == 0 {
		return nil
	}

	var ps []Percentile
	for _, r := range ranks {
		if runs < r.minRuns {
			continue
		}
		ps = append(ps, newPercentile(sorted, r.rank, runs*r.rank/100-1, fastest))
	}
	return append(ps, newPercentile(sorted, 100, runs-1, fastest))
}

func newPercentile(sorted []uint64, rank, idx int, fastest uint64) Percentile {
	v := sorted[idx]
	return Percentile{
		Rank:      rank,
		Index:     idx,
		Value:     v,
		SlowerPct: slowerPctOfValue(v, fastest),
	}
}

func slowerPctOfValue(v, fastest uint64) float64 {
	if fastest == 0 {
		return SlowerPct(v, fastest)
	}
	return 100 * (float64(v) - float64(fastest)) / float64(fastest)
}

// Summary holds absolute times in microseconds and the matching rates in
// iterations per second.
type Summary struct {
	Fastest uint64
	Median  uint64
	Mean    float64
	Slowest uint64

	FastestRate uint64
	MedianRate  uint64
	MeanRate    uint64
	SlowestRate uint64
}

// Summarize sorted wall times of runs of iterations iterations each. The
// median uses the same index as the 50th percentile, floored at the first
// run for samples of fewer than two runs.
func Summarize(sorted []uint64, iterations uint64) Summary {
	runs := len(sorted)
	if runs == 0 {
		return Summary{}
	}

	var total uint64
	for _, t := range sorted {
		total += t
	}
	median := sorted[max(runs*50/100-1, 0)]
	meanUS := total / uint64(runs)

	return Summary{
		Fastest: sorted[0],
		Median:  median,
		Mean:    float64(total) / float64(runs),
		Slowest: sorted[runs-1],

		FastestRate: rate(iterations, sorted[0]),
		MedianRate:  rate(iterations, median),
		MeanRate:    rate(iterations, meanUS),
		SlowestRate: rate(iterations, sorted[runs-1]),
	}
}

// rate is iterations*1e6/us, saturating instead of overflowing.
func rate(iterations, us uint64) uint64 {
	if us == 0 {
		return 0
	}
	hi, lo := bits.Mul64(iterations, 1_000_000)
	if hi >= us {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, us)
	return q
}
