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

// Package report renders the perturbation distribution of a sample: a
// non-uniform histogram of percent slower than the fastest run, tail
// percentiles and absolute summaries.
package report

import (
	"errors"
	"fmt"
	"math"
)

// Buckets is the number of histogram slots.
const Buckets = 200

// ErrNegativeIndex means a run was faster than the anchor it is compared
// with, which only happens if the anchor is not the fastest run.
var ErrNegativeIndex = errors.New("negative histogram index")

// Index maps a percent-slower value to its bucket:
//
//	[0, 1)   0.1 wide, buckets 0..9
//	[1, 20)  1 wide,   buckets 10..28
//	[20, ∞)  10 wide,  buckets 29..199
//
// Values past the last bucket clamp to it.
func Index(v float64) (int, error) {
	if v < 0 || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: value %v", ErrNegativeIndex, v)
	}
	if v >= LowerBound(Buckets-1) {
		return Buckets - 1, nil
	}

	var idx int
	switch {
	case v < 1:
		idx = int(10 * v)
	case v < 20:
		idx = 10 + int(v-1)
	default:
		idx = 29 + int((v-20)/10)
	}
	if idx > Buckets-1 {
		idx = Buckets - 1
	}
	return idx, nil
}

// LowerBound is the smallest percent-slower value that maps to idx.
func LowerBound(idx int) float64 {
	switch {
	case idx < 10:
		return float64(idx) / 10
	case idx < 29:
		return float64(idx - 9)
	default:
		return float64(idx-29)*10 + 20
	}
}

// SlowerPct is how much slower t is than fastest, in percent.
func SlowerPct(t, fastest uint64) float64 {
	if t == fastest {
		return 0
	}
	if fastest == 0 {
		return math.Inf(1)
	}
	return 100 * (float64(t)/float64(fastest) - 1)
}

type Histogram struct {
	Counts   [Buckets]int
	MaxIndex int
	MaxCount int
	Runs     int
}

// NewHistogram buckets every wall time by how much slower it is than
// fastest. All values are in microseconds.
func NewHistogram(walls []uint64, fastest uint64) (*Histogram, error) {
	h := &Histogram{Runs: len(walls)}
	for _, t := range walls {
		idx, err := Index(SlowerPct(t, fastest))
		if err != nil {
			return nil, fmt.Errorf("run of %dus against fastest %dus: %w", t, fastest, err)
		}
		h.Counts[idx]++
		if idx > h.MaxIndex {
			h.MaxIndex = idx
		}
	}
	for i := 0; i <= h.MaxIndex; i++ {
		if h.Counts[i] > h.MaxCount {
			h.MaxCount = h.Counts[i]
		}
	}
	return h, nil
}

// Row is one rendered bucket.
type Row struct {
	Index      int
	LowerBound float64
	Count      int
	Percent    float64
	Bar        int
	// Overflow marks the last bucket, which also holds everything past it.
	Overflow bool
}

// Rows returns buckets 0 through MaxIndex with bars scaled so the fullest
// bucket is barWidth wide.
func (h *Histogram) Rows(barWidth int) []Row {
	if h.Runs == 0 {
		return nil
	}
	rows := make([]Row, 0, h.MaxIndex+1)
	for i := 0; i <= h.MaxIndex; i++ {
		rows = append(rows, Row{
			Index:      i,
			LowerBound: LowerBound(i),
			Count:      h.Counts[i],
			Percent:    100 * float64(h.Counts[i]) / float64(h.Runs),
			Bar:        Ceil(float64(barWidth) * float64(h.Counts[i]) / float64(h.MaxCount)),
			Overflow:   i == Buckets-1,
		})
	}
	return rows
}

// Ceil returns x for integral x and floor(x)+1 otherwise.
func Ceil(x float64) int {
	if x > float64(int(x)) {
		return int(x) + 1
	}
	return int(x)
}
