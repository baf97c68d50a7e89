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
	"fmt"
	"io"

	"github.com/parca-dev/p1bench/pkg/sampler"
)

// ProgressPrinter renders per-run output while sampling: a single
// rewritten status line, or one table row per run when verbose.
type ProgressPrinter struct {
	w        io.Writer
	verbose  bool
	terminal bool
	printed  bool
}

// NewProgressPrinter returns a printer writing to w. When terminal is
// false the status line is not rewritten in place.
func NewProgressPrinter(w io.Writer, verbose, terminal bool) *ProgressPrinter {
	return &ProgressPrinter{w: w, verbose: verbose, terminal: terminal}
}

func (p *ProgressPrinter) Print(pr sampler.Progress) {
	p.printed = true
	if !p.verbose {
		if p.terminal {
			fmt.Fprintf(p.w, "\rRun %d/%d, Ctrl-C to stop (%.2f%% diff)  ", pr.Run+1, pr.MaxRuns, pr.DiffPct)
			return
		}
		fmt.Fprintf(p.w, "Run %d/%d, Ctrl-C to stop (%.2f%% diff)\n", pr.Run+1, pr.MaxRuns, pr.DiffPct)
		return
	}

	if pr.Run == 0 {
		fmt.Fprintf(p.w, "%s %s %s %s %s %s\n", "run", "time(ms)", "usr_time(ms)", "sys_time(ms)", "involuntary_csw", "diff%")
	}

	r := pr.Record
	fmt.Fprintf(p.w, "%d %.2f ", pr.Run+1, millis(r.Wall.Microseconds()))
	if r.UsageAvailable() {
		fmt.Fprintf(p.w, "%.1f %.1f %d ", millis(r.User.Microseconds()), millis(r.Sys.Microseconds()), r.InvoluntaryCtxSwitches)
	} else {
		fmt.Fprint(p.w, "n/a n/a n/a ")
	}
	if pr.HasDiff {
		fmt.Fprintf(p.w, "%.1f\n", pr.DiffPct)
	} else {
		fmt.Fprint(p.w, "-\n")
	}
}

// Finish terminates an in-place status line.
func (p *ProgressPrinter) Finish() {
	if p.printed && !p.verbose && p.terminal {
		fmt.Fprint(p.w, "\n")
	}
}

func millis(us int64) float64 {
	return float64(us) / 1000
}
