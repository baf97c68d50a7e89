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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parca-dev/p1bench/pkg/sampler"
)

func TestProgressPrinterTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf, false, true)

	p.Print(sampler.Progress{Run: 0, MaxRuns: 3})
	p.Print(sampler.Progress{Run: 1, MaxRuns: 3, DiffPct: 1.5, HasDiff: true})
	p.Finish()

	require.Equal(t,
		"\rRun 1/3, Ctrl-C to stop (0.00% diff)  "+
			"\rRun 2/3, Ctrl-C to stop (1.50% diff)  "+
			"\n",
		buf.String())
}

func TestProgressPrinterPipe(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf, false, false)

	p.Print(sampler.Progress{Run: 0, MaxRuns: 2})
	p.Print(sampler.Progress{Run: 1, MaxRuns: 2, DiffPct: -2.25, HasDiff: true})
	p.Finish()

	require.Equal(t,
		"Run 1/2, Ctrl-C to stop (0.00% diff)\n"+
			"Run 2/2, Ctrl-C to stop (-2.25% diff)\n",
		buf.String())
}

func TestProgressPrinterFinishWithoutRuns(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf, false, true)
	p.Finish()
	require.Empty(t, buf.String())
}

func TestProgressPrinterVerbose(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf, true, true)

	p.Print(sampler.Progress{
		Run:     0,
		MaxRuns: 3,
		Record: sampler.Record{
			Wall:                   100 * time.Millisecond,
			User:                   90 * time.Millisecond,
			Sys:                    10 * time.Millisecond,
			InvoluntaryCtxSwitches: 2,
		},
	})
	p.Print(sampler.Progress{
		Run:     1,
		MaxRuns: 3,
		Record: sampler.Record{
			Wall:                   101 * time.Millisecond,
			User:                   100 * time.Millisecond,
			Sys:                    0,
			InvoluntaryCtxSwitches: 0,
		},
		DiffPct: 1,
		HasDiff: true,
	})
	p.Print(sampler.Progress{
		Run:     2,
		MaxRuns: 3,
		Record: sampler.Record{
			Wall:     99500 * time.Microsecond,
			UsageErr: errors.New("getrusage: EFAULT"),
		},
		DiffPct: -1.485,
		HasDiff: true,
	})
	p.Finish()

	require.Equal(t,
		"run time(ms) usr_time(ms) sys_time(ms) involuntary_csw diff%\n"+
			"1 100.00 90.0 10.0 2 -\n"+
			"2 101.00 100.0 0.0 0 1.0\n"+
			"3 99.50 n/a n/a n/a -1.5\n",
		buf.String())
}
