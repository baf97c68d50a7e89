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
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/parca-dev/p1bench/pkg/sampler"
)

const DefaultBarWidth = 50

type Reporter struct {
	w        io.Writer
	barWidth int
}

func New(w io.Writer) *Reporter {
	return &Reporter{w: w, barWidth: DefaultBarWidth}
}

// Write renders the histogram, percentile and summary sections for s. An
// empty sample renders a single line saying so.
func (r *Reporter) Write(s *sampler.Sample, target time.Duration) error {
	var buf bytes.Buffer
	if err := r.render(&buf, s, target); err != nil {
		return err
	}
	_, err := r.w.Write(buf.Bytes())
	return err
}

func (r *Reporter) render(buf *bytes.Buffer, s *sampler.Sample, target time.Duration) error {
	if s.Runs() == 0 {
		buf.WriteString("\nNo runs completed, no perturbation data to report.\n")
		return nil
	}

	walls := s.WallMicros()
	fastest := uint64(s.Fastest.Microseconds())
	h, err := NewHistogram(walls, fastest)
	if err != nil {
		return fmt.Errorf("internal error building histogram: %w", err)
	}

	fmt.Fprintf(buf, "\nPerturbation percent by count for %d ms runs:\n", target.Milliseconds())
	fmt.Fprintf(buf, "%9s  %6s %7s %s\n", "Slower%", "Count", "Count%", "Histogram")
	for _, row := range h.Rows(r.barWidth) {
		sep := ":"
		if row.Overflow {
			sep = "+"
		}
		fmt.Fprintf(buf, "%8.1f%%%s %6d %6.2f%% %s\n", row.LowerBound, sep, row.Count, row.Percent, strings.Repeat("*", row.Bar))
	}

	sorted := slices.Clone(walls)
	slices.Sort(sorted)

	buf.WriteString("\n")
	buf.WriteString(PercentileLine(Percentiles(sorted, fastest)))

	sum := Summarize(sorted, s.Iterations)
	fmt.Fprintf(buf, "Fastest: %.3f ms, 50th: %.3f ms, mean: %.3f ms, slowest: %.3f ms\n",
		float64(sum.Fastest)/1000, float64(sum.Median)/1000, sum.Mean/1000, float64(sum.Slowest)/1000)
	fmt.Fprintf(buf, "Fastest rate: %d/s, 50th: %d/s, mean: %d/s, slowest: %d/s\n",
		sum.FastestRate, sum.MedianRate, sum.MeanRate, sum.SlowestRate)
	return nil
}

// PercentileLine formats percentiles as "Percentiles: 50th: x%, 100th: y%".
func PercentileLine(ps []Percentile) string {
	var sb strings.Builder
	sb.WriteString("Percentiles:")
	for i, p := range ps {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, " %dth: %.3f%%", p.Rank, p.SlowerPct)
	}
	sb.WriteString("\n")
	return sb.String()
}
