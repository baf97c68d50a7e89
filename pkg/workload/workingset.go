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

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// WorkingSet is an anonymous private mapping written once per page before
// first use, so that timed reads never take a demand fault.
type WorkingSet struct {
	mem      []byte
	pageSize int
}

// NewWorkingSet maps size bytes and touches every page.
func NewWorkingSet(size uint64) (*WorkingSet, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: working set size must be > 0", ErrInvalidSpec)
	}
	if size > uint64(maxInt) {
		return nil, fmt.Errorf("working set of %d bytes exceeds the address space", size)
	}

	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate %d byte working set: %w", size, err)
	}

	ws := &WorkingSet{mem: mem, pageSize: unix.Getpagesize()}
	ws.touch()
	return ws, nil
}

const maxInt = int(^uint(0) >> 1)

func (ws *WorkingSet) touch() {
	for off := 0; off < len(ws.mem); off += ws.pageSize {
		ws.mem[off] = 'A'
	}
}

func (ws *WorkingSet) Bytes() []byte { return ws.mem }

func (ws *WorkingSet) Size() uint64 { return uint64(len(ws.mem)) }

func (ws *WorkingSet) PageSize() int { return ws.pageSize }

// Close unmaps the working set. It is safe to call more than once.
func (ws *WorkingSet) Close() error {
	if ws.mem == nil {
		return nil
	}
	mem := ws.mem
	ws.mem = nil
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("failed to unmap working set: %w", err)
	}
	return nil
}
