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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	runtimepprof "runtime/pprof"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	okrun "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/term"

	"github.com/parca-dev/p1bench/flags"
	"github.com/parca-dev/p1bench/pkg/bench"
	"github.com/parca-dev/p1bench/pkg/buildinfo"
	"github.com/parca-dev/p1bench/pkg/logger"
	"github.com/parca-dev/p1bench/pkg/machine"
	"github.com/parca-dev/p1bench/pkg/sampler"
)

var (
	version = "dev"
	commit  string
	date    string
)

func main() {
	// A missing build info only degrades the --version output.
	bi, _ := buildinfo.FetchBuildInfo()

	f, kctx, err := flags.Parse(os.Args[1:], kong.Vars{
		"version": buildinfo.VersionString("p1bench", version, commit, date, bi),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "p1bench: error: %v\n", err)
		if kctx != nil {
			_ = kctx.PrintUsage(true)
		}
		os.Exit(int(flags.ExitFailure))
	}
	if code := f.Validate(); code != flags.ExitSuccess {
		_ = kctx.PrintUsage(true)
		os.Exit(int(code))
	}

	logger := logger.NewLogger(f.Log.Level, f.Log.Format, "p1bench")

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...interface{}) {
		level.Debug(logger).Log("msg", fmt.Sprintf(format, a...))
	})); err != nil {
		level.Warn(logger).Log("msg", "failed to set GOMAXPROCS automatically", "err", err)
	}

	machine.Describe().Log(logger)
	level.Debug(logger).Log("msg", "p1bench initialized",
		"version", version,
		"commit", commit,
		"go_version", runtime.Version(),
		"gomaxprocs", runtime.GOMAXPROCS(0),
	)

	if err := run(logger, f); err != nil {
		level.Error(logger).Log("err", err)
		os.Exit(int(flags.ExitFailure))
	}
}

func run(logger log.Logger, f flags.Flags) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	usage, err := sampler.NewUsageReader(f.UsageSource)
	if err != nil {
		return fmt.Errorf("failed to set up %s usage reader: %w", f.UsageSource, err)
	}

	b := bench.New(logger, reg, os.Stdout, bench.Config{
		Target:              f.Target(),
		MaxRuns:             f.Count,
		Verbose:             f.Verbose,
		Terminal:            term.IsTerminal(int(os.Stdout.Fd())),
		Workload:            f.Workload(),
		ProbeDuration:       f.Calibration.Probe,
		CalibrationRuns:     f.Calibration.Runs,
		CalibrationAttempts: f.Calibration.Attempts,
		Usage:               usage,
	})

	var (
		ctx = context.Background()
		g   okrun.Group
	)

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			level.Debug(logger).Log("msg", "starting: benchmark")
			defer level.Debug(logger).Log("msg", "stopped: benchmark")

			var err error
			runtimepprof.Do(ctx, runtimepprof.Labels("component", "benchmark"), func(ctx context.Context) {
				err = b.Run(ctx)
			})
			return err
		}, func(err error) {
			var sigErr okrun.SignalError
			if errors.As(err, &sigErr) {
				b.Stop()
			}
			cancel()
		})
	}

	if f.HTTPAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:         f.HTTPAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: time.Minute,
		}

		g.Add(func() error {
			level.Info(logger).Log("msg", "serving metrics", "address", f.HTTPAddress)
			defer level.Debug(logger).Log("msg", "stopped: http server")

			var err error
			runtimepprof.Do(ctx, runtimepprof.Labels("component", "http_server"), func(_ context.Context) {
				err = srv.ListenAndServe()
			})
			return err
		}, func(error) {
			srv.Close()
		})
	}

	g.Add(okrun.SignalHandler(ctx, os.Interrupt))

	err = g.Run()
	var sigErr okrun.SignalError
	if errors.As(err, &sigErr) {
		return nil
	}
	return err
}
