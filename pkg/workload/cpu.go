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

package workload

import "go.uber.org/atomic"

// CPU is a spin loop whose cost is the loop overhead itself.
type CPU struct{}

func NewCPU() *CPU {
	return &CPU{}
}

func (c *CPU) Name() string { return string(KindCPU) }

//go:noinline
func (c *CPU) Run(count uint64) uint64 {
	var (
		i   uint64
		acc uint64
	)
	for i = 0; i < count; i++ {
		acc ^= i
	}
	sink.Store(acc)
	return i
}

//go:noinline
func (c *CPU) Spin(running *atomic.Bool) uint64 {
	var (
		n   uint64
		acc uint64
	)
	for running.Load() {
		acc ^= n
		n++
	}
	sink.Store(acc)
	return n
}

func (c *CPU) Close() error { return nil }
