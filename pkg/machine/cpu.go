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

package machine

import (
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

const onlineCPUsPath = "sys/devices/system/cpu/online"

type InclusiveRange struct {
	First uint64
	Last  uint64
}

// CPUSet is a list of CPU ranges as found in sysfs, e.g. "0-3,8-11".
type CPUSet []InclusiveRange

func (s CPUSet) Num() uint64 {
	ret := uint64(0)
	for _, cpuRange := range s {
		ret += (cpuRange.Last - cpuRange.First + 1)
	}
	return ret
}

func (s CPUSet) String() string {
	parts := make([]string, 0, len(s))
	for _, r := range s {
		if r.First == r.Last {
			parts = append(parts, strconv.FormatUint(r.First, 10))
			continue
		}
		parts = append(parts, fmt.Sprintf("%d-%d", r.First, r.Last))
	}
	return strings.Join(parts, ",")
}

func OnlineCPUs() (CPUSet, error) {
	return onlineCPUs(os.DirFS("/"))
}

func onlineCPUs(fsys fs.FS) (CPUSet, error) {
	buf, err := fs.ReadFile(fsys, onlineCPUsPath)
	if err != nil {
		return nil, err
	}
	return ParseCPUSet(string(buf))
}

// ParseCPUSet parses the sysfs CPU list format.
func ParseCPUSet(s string) (CPUSet, error) {
	ret := make(CPUSet, 0)
	s = strings.Trim(s, "\n ")
	for _, cpuRange := range strings.Split(s, ",") {
		if len(cpuRange) == 0 {
			continue
		}
		from, to, found := strings.Cut(cpuRange, "-")
		first, err := strconv.ParseUint(from, 10, 32)
		if err != nil {
			return nil, err
		}
		last := first
		if found {
			last, err = strconv.ParseUint(to, 10, 32)
			if err != nil {
				return nil, err
			}
		}
		if last < first {
			return nil, fmt.Errorf("last online CPU in range (%d) less than first (%d)", last, first)
		}
		ret = append(ret, InclusiveRange{First: first, Last: last})
	}
	return ret, nil
}
