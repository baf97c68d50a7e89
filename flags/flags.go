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

package flags

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/alecthomas/kong"

	"github.com/parca-dev/p1bench/pkg/calibrate"
	"github.com/parca-dev/p1bench/pkg/workload"
)

const description = `Perturbation benchmark. Runs a fixed amount of work many times and
reports how much slower each run was than the fastest one.

  eg,
      p1bench          # 100ms (default) CPU spin loop
      p1bench 300      # 300ms CPU spin loop
      p1bench 300 100  # 300ms CPU spin loop, 100 times
      p1bench -m 1024  # 1GB memory read loop`

// errOutput receives validation failures.
var errOutput io.Writer = os.Stderr

// Parse parses args (without the program name) into Flags. Options are
// applied after the defaults, e.g. to override kong.Exit in tests.
// The returned context, when not nil, can print usage after a failure.
func Parse(args []string, opts ...kong.Option) (Flags, *kong.Context, error) {
	flags := Flags{}
	parser, err := kong.New(&flags, append([]kong.Option{
		kong.Name("p1bench"),
		kong.Description(description),
		kong.Vars{
			"default_stride":               strconv.Itoa(workload.DefaultStride),
			"default_calibration_probe":    calibrate.DefaultProbeDuration.String(),
			"default_calibration_runs":     strconv.Itoa(calibrate.DefaultTestRuns),
			"default_calibration_attempts": strconv.Itoa(calibrate.DefaultMaxAttempts),
		},
	}, opts...)...)
	if err != nil {
		return Flags{}, nil, err
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		var perr *kong.ParseError
		if errors.As(err, &perr) {
			kctx = perr.Context
		}
		return Flags{}, kctx, err
	}
	return flags, kctx, nil
}

type Flags struct {
	Verbose   bool      `short:"v" help:"Verbose: per run details."`
	Megabytes Megabytes `short:"m" name:"mbytes" placeholder:"MBYTES" help:"Memory test working set in Mbytes. Selects the memory read loop."`

	TimeMS int64 `arg:"" optional:"" name:"time" default:"100" help:"Target duration of a single run in milliseconds."`
	Count  int   `arg:"" optional:"" name:"count" default:"100" help:"Maximum number of runs."`

	Stride      uint64           `default:"${default_stride}" help:"Memory read loop stride in bytes."`
	Calibration FlagsCalibration `embed:"" prefix:"calibration-"`
	UsageSource string           `default:"rusage" enum:"rusage,procfs" help:"Where per run CPU usage is read from."`

	Log         FlagsLogs        `embed:"" prefix:"log-"`
	HTTPAddress string           `default:"" help:"Address to serve Prometheus metrics on while running. Disabled when empty."`
	Version     kong.VersionFlag `help:"Show application version."`
}

// FlagsCalibration tunes the iteration count search.
type FlagsCalibration struct {
	Probe    time.Duration `default:"${default_calibration_probe}"    help:"How long the probe loop spins."`
	Runs     int           `default:"${default_calibration_runs}"     help:"Timed refine runs of the probed count."`
	Attempts uint64        `default:"${default_calibration_attempts}" help:"Probe attempts, each twice as long, while runs are below clock resolution."`
}

// FlagsLogs configures the logger.
type FlagsLogs struct {
	Level  string `default:"info"   enum:"error,warn,info,debug" help:"Log level."`
	Format string `default:"logfmt" enum:"logfmt,json"           help:"Configure if structured logging as JSON or as logfmt"`
}

// Megabytes is the -m value. It records whether it was given so that an
// explicit zero can be rejected.
type Megabytes struct {
	Set   bool
	Value uint64
}

func (m *Megabytes) Decode(ctx *kong.DecodeContext) error {
	t, err := ctx.Scan.PopValue("mbytes")
	if err != nil {
		return err
	}
	s, ok := t.Value.(string)
	if !ok {
		return fmt.Errorf("expected Mbytes but got %q", t)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("expected Mbytes but got %q", s)
	}
	m.Set = true
	m.Value = v
	return nil
}

type ExitCode int

const (
	ExitSuccess ExitCode = 0
	ExitFailure ExitCode = 1
)

func Failure(msg string, args ...interface{}) ExitCode {
	fmt.Fprintf(errOutput, msg+"\n", args...)
	return ExitFailure
}

func (f Flags) Validate() ExitCode {
	if f.TimeMS <= 0 {
		return Failure("ERROR: target ms must be > 0")
	}
	if f.Megabytes.Set && f.Megabytes.Value == 0 {
		return Failure("-m Mbytes must be non-zero")
	}
	if f.Megabytes.Value > maxMegabytes {
		return Failure("-m Mbytes must be at most %d", uint64(maxMegabytes))
	}
	if f.Count < 0 {
		return Failure("ERROR: count must be >= 0")
	}
	if f.Stride == 0 {
		return Failure("--stride must be > 0")
	}
	if f.Calibration.Probe <= 0 {
		return Failure("--calibration-probe must be > 0")
	}
	if f.Calibration.Runs <= 0 {
		return Failure("--calibration-runs must be > 0")
	}
	if f.Calibration.Attempts == 0 {
		return Failure("--calibration-attempts must be > 0")
	}
	return ExitSuccess
}

const maxMegabytes = (1<<63 - 1) / (1 << 20)

// Target is the per run target duration.
func (f Flags) Target() time.Duration {
	return time.Duration(f.TimeMS) * time.Millisecond
}

// Workload translates -m and --stride into a workload spec.
func (f Flags) Workload() workload.Spec {
	if !f.Megabytes.Set {
		return workload.Spec{Kind: workload.KindCPU}
	}
	return workload.Spec{
		Kind:            workload.KindMemory,
		WorkingSetBytes: f.Megabytes.Value << 20,
		StrideBytes:     f.Stride,
	}
}
