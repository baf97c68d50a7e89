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

// Package workload provides the fixed-cost loops whose run time p1bench
// measures.
package workload

import (
	"errors"
	"fmt"

	"go.uber.org/atomic"
)

// DefaultStride is one cache line on common x86-64 parts.
const DefaultStride = 64

var ErrInvalidSpec = errors.New("invalid workload spec")

// Kind selects the loop a Workload executes.
type Kind string

const (
	KindCPU    Kind = "cpu"
	KindMemory Kind = "mem"
)

// Workload performs count unit operations per call.
type Workload interface {
	Name() string
	// Run executes exactly count iterations and returns the number executed.
	Run(count uint64) uint64
	// Spin iterates until running is cleared and returns the number of
	// completed iterations. The flag is checked once per iteration.
	Spin(running *atomic.Bool) uint64
	Close() error
}

// Spec describes which workload to build.
type Spec struct {
	Kind            Kind
	WorkingSetBytes uint64
	StrideBytes     uint64
}

func (s Spec) Validate() error {
	switch s.Kind {
	case KindCPU:
		return nil
	case KindMemory:
		if s.WorkingSetBytes == 0 {
			return fmt.Errorf("%w: working set size must be > 0", ErrInvalidSpec)
		}
		if s.StrideBytes == 0 {
			return fmt.Errorf("%w: stride must be > 0", ErrInvalidSpec)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, s.Kind)
	}
}

// Open builds the workload described by spec. Memory workloads allocate
// and pre-touch their working set before returning.
func Open(spec Spec) (Workload, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	switch spec.Kind {
	case KindMemory:
		ws, err := NewWorkingSet(spec.WorkingSetBytes)
		if err != nil {
			return nil, err
		}
		return NewMemory(ws, spec.StrideBytes), nil
	default:
		return NewCPU(), nil
	}
}

// sink receives loop results so the compiler cannot prove the loops are
// free of side effects.
var sink atomic.Uint64

// Sink returns the last value published by a workload.
func Sink() uint64 {
	return sink.Load()
}
