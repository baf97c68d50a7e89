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
	"os"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/zcalusic/sysinfo"
)

// Description is what the benchmark logs about the host before it runs.
// Perturbation noise depends heavily on these.
type Description struct {
	KernelRelease string
	// KernelVersion is nil when the release string is not semver-like.
	KernelVersion *semver.Version
	OS            string
	CPUModel      string
	OnlineCPUs    CPUSet
	NumCPU        int
	PageSize      int
	Cgroup        string
}

func Describe() Description {
	var si sysinfo.SysInfo
	si.GetSysInfo()

	d := Description{
		KernelRelease: si.Kernel.Release,
		OS:            si.OS.Name,
		CPUModel:      si.CPU.Model,
		NumCPU:        runtime.NumCPU(),
		PageSize:      os.Getpagesize(),
		Cgroup:        SelfCgroup(),
	}
	if v, err := KernelVersion(si.Kernel.Release); err == nil {
		d.KernelVersion = v
	}
	if cpus, err := OnlineCPUs(); err == nil {
		d.OnlineCPUs = cpus
	}
	return d
}

// KernelVersion parses the leading version of a kernel release such as
// "6.5.0-35-generic".
func KernelVersion(release string) (*semver.Version, error) {
	short, _, _ := strings.Cut(release, "-")
	return semver.NewVersion(short)
}

func (d Description) Log(logger log.Logger) {
	kv := []interface{}{
		"msg", "host",
		"kernel", d.KernelRelease,
		"os", d.OS,
		"cpu_model", d.CPUModel,
		"num_cpu", d.NumCPU,
		"page_size", d.PageSize,
	}
	if d.KernelVersion != nil {
		kv = append(kv, "kernel_version", d.KernelVersion.String())
	}
	if d.Cgroup != "" {
		kv = append(kv, "cgroup", d.Cgroup)
	}
	if d.OnlineCPUs != nil {
		kv = append(kv, "online_cpus", d.OnlineCPUs.String(), "num_online_cpus", d.OnlineCPUs.Num())
	}
	level.Info(logger).Log(kv...)
}
