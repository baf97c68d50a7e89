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
	"bytes"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/go-kit/log"
	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/require"
)

func TestParseCPUSet(t *testing.T) {
	tests := []struct {
		in   string
		want CPUSet
		num  uint64
		str  string
	}{
		{in: "0\n", want: CPUSet{{0, 0}}, num: 1, str: "0"},
		{in: "0-7\n", want: CPUSet{{0, 7}}, num: 8, str: "0-7"},
		{in: "0-3,8-11", want: CPUSet{{0, 3}, {8, 11}}, num: 8, str: "0-3,8-11"},
		{in: "0,2,4-5", want: CPUSet{{0, 0}, {2, 2}, {4, 5}}, num: 4, str: "0,2,4-5"},
		{in: "", want: CPUSet{}, num: 0, str: ""},
	}
	for _, tt := range tests {
		got, err := ParseCPUSet(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
		require.Equal(t, tt.num, got.Num(), tt.in)
		require.Equal(t, tt.str, got.String(), tt.in)
	}
}

func TestParseCPUSetErrors(t *testing.T) {
	for _, in := range []string{"a", "0-b", "3-1", "-1"} {
		_, err := ParseCPUSet(in)
		require.Error(t, err, in)
	}
}

func TestOnlineCPUs(t *testing.T) {
	cpus, err := onlineCPUs(fstest.MapFS{
		"sys/devices/system/cpu/online": {Data: []byte("0-3,6\n")},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(5), cpus.Num())

	_, err = onlineCPUs(fstest.MapFS{})
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestBenchCgroup(t *testing.T) {
	v2 := []procfs.Cgroup{{HierarchyID: 0, Path: "/user.slice/user-1000.slice/session-2.scope"}}
	cg, ok := benchCgroup(v2)
	require.True(t, ok)
	require.Equal(t, v2[0], cg)

	v1 := []procfs.Cgroup{
		{HierarchyID: 12, Controllers: []string{"memory"}, Path: "/docker/abc"},
		{HierarchyID: 4, Controllers: []string{"cpu", "cpuacct"}, Path: "/docker/def"},
		{HierarchyID: 1, Controllers: []string{"name=systemd"}, Path: "/system.slice/docker.service"},
	}
	cg, ok = benchCgroup(v1)
	require.True(t, ok)
	require.Equal(t, "/docker/def", cg.Path)

	slices := []procfs.Cgroup{
		{HierarchyID: 12, Controllers: []string{"memory"}, Path: "/"},
		{HierarchyID: 1, Controllers: []string{"name=systemd"}, Path: "/system.slice/sshd.service"},
	}
	cg, ok = benchCgroup(slices)
	require.True(t, ok)
	require.Equal(t, "/system.slice/sshd.service", cg.Path)

	_, ok = benchCgroup([]procfs.Cgroup{{Path: "/a"}, {Path: "/b"}})
	require.False(t, ok)

	_, ok = benchCgroup(nil)
	require.False(t, ok)
}

func TestKernelVersion(t *testing.T) {
	v, err := KernelVersion("6.5.0-35-generic")
	require.NoError(t, err)
	require.Equal(t, "6.5.0", v.String())

	v, err = KernelVersion("5.4")
	require.NoError(t, err)
	require.Equal(t, "5.4.0", v.String())

	_, err = KernelVersion("")
	require.Error(t, err)
}

func TestDescribe(t *testing.T) {
	d := Describe()
	require.Positive(t, d.NumCPU)
	require.Positive(t, d.PageSize)

	var buf bytes.Buffer
	d.Log(log.NewLogfmtLogger(&buf))
	require.Contains(t, buf.String(), "msg=host")
	require.Contains(t, buf.String(), "page_size=")
}
