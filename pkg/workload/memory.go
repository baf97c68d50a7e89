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

// Memory reads one byte every stride bytes across a working set, wrapping
// to the start of the buffer when the read offset reaches its end.
type Memory struct {
	ws     *WorkingSet
	stride uint64
}

func NewMemory(ws *WorkingSet, stride uint64) *Memory {
	if stride == 0 {
		stride = DefaultStride
	}
	return &Memory{ws: ws, stride: stride}
}

func (m *Memory) Name() string { return string(KindMemory) }

func (m *Memory) WorkingSet() *WorkingSet { return m.ws }

func (m *Memory) Stride() uint64 { return m.stride }

//go:noinline
func (m *Memory) Run(count uint64) uint64 {
	var (
		buf  = m.ws.Bytes()
		size = uint64(len(buf))
		off  uint64
		junk uint64
		i    uint64
	)
	for i = 0; i < count; i++ {
		junk += uint64(buf[off])
		off += m.stride
		if off >= size {
			off = 0
		}
	}
	sink.Store(junk)
	return i
}

//go:noinline
func (m *Memory) Spin(running *atomic.Bool) uint64 {
	var (
		buf  = m.ws.Bytes()
		size = uint64(len(buf))
		off  uint64
		junk uint64
		n    uint64
	)
	for running.Load() {
		junk += uint64(buf[off])
		off += m.stride
		if off >= size {
			off = 0
		}
		n++
	}
	sink.Store(junk)
	return n
}

func (m *Memory) Close() error {
	return m.ws.Close()
}
