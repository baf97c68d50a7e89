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
	"strings"

	"github.com/prometheus/procfs"
)

// benchCgroup picks the cgroup whose CPU accounting applies to the
// benchmark: the only one on cgroup v2, the cpu controller on v1, or the
// first systemd slice.
func benchCgroup(cgroups []procfs.Cgroup) (procfs.Cgroup, bool) {
	if len(cgroups) == 1 {
		return cgroups[0], true
	}

	for _, cg := range cgroups {
		for _, ctlr := range cg.Controllers {
			if ctlr == "cpu" {
				return cg, true
			}
		}
	}
	for _, cg := range cgroups {
		if strings.HasPrefix(cg.Path, "/system.slice/") || strings.HasPrefix(cg.Path, "/user.slice/") {
			return cg, true
		}
	}
	return procfs.Cgroup{}, false
}

// SelfCgroup returns the cgroup path of the running process, or "" when
// it cannot be determined.
func SelfCgroup() string {
	p, err := procfs.Self()
	if err != nil {
		return ""
	}
	cgroups, err := p.Cgroups()
	if err != nil {
		return ""
	}
	cg, ok := benchCgroup(cgroups)
	if !ok {
		return ""
	}
	return cg.Path
}
