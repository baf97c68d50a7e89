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
	"fmt"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

const (
	UsageSourceRusage = "rusage"
	UsageSourceProcfs = "procfs"

	// USER_HZ as exported through /proc/[pid]/stat.
	userHZ = 100
)

// Usage is a snapshot of the process' resource usage counters.
type Usage struct {
	User                   time.Duration
	Sys                    time.Duration
	InvoluntaryCtxSwitches int64
}

func (u Usage) Sub(o Usage) Usage {
	return Usage{
		User:                   u.User - o.User,
		Sys:                    u.Sys - o.Sys,
		InvoluntaryCtxSwitches: u.InvoluntaryCtxSwitches - o.InvoluntaryCtxSwitches,
	}
}

// UsageReader reads the resource usage of the calling process.
type UsageReader interface {
	Read() (Usage, error)
}

// NewUsageReader returns the reader for the named source.
func NewUsageReader(source string) (UsageReader, error) {
	switch source {
	case "", UsageSourceRusage:
		return RusageReader{}, nil
	case UsageSourceProcfs:
		return NewProcfsReader()
	default:
		return nil, fmt.Errorf("unknown usage source %q", source)
	}
}

// RusageReader reads getrusage(RUSAGE_SELF).
type RusageReader struct{}

func (RusageReader) Read() (Usage, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return Usage{}, fmt.Errorf("getrusage: %w", err)
	}
	return Usage{
		User:                   time.Duration(ru.Utime.Nano()),
		Sys:                    time.Duration(ru.Stime.Nano()),
		InvoluntaryCtxSwitches: int64(ru.Nivcsw),
	}, nil
}

// ProcfsReader reads /proc/self/stat and /proc/self/status. CPU times have
// clock tick resolution.
type ProcfsReader struct {
	proc procfs.Proc
}

func NewProcfsReader() (*ProcfsReader, error) {
	p, err := procfs.Self()
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs for self: %w", err)
	}
	return &ProcfsReader{proc: p}, nil
}

func (r *ProcfsReader) Read() (Usage, error) {
	stat, err := r.proc.Stat()
	if err != nil {
		return Usage{}, fmt.Errorf("read stat: %w", err)
	}
	status, err := r.proc.NewStatus()
	if err != nil {
		return Usage{}, fmt.Errorf("read status: %w", err)
	}
	return Usage{
		User:                   ticks(stat.UTime),
		Sys:                    ticks(stat.STime),
		InvoluntaryCtxSwitches: int64(status.NonVoluntaryCtxtSwitches),
	}, nil
}

func ticks(n uint) time.Duration {
	return time.Duration(n) * time.Second / userHZ
}
