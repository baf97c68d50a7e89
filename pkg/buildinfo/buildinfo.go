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

package buildinfo

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

type BuildInfo struct {
	GoVersion, GoArch, GoOs, VcsRevision, VcsTime string
	VcsModified                                   bool
}

func FetchBuildInfo() (*BuildInfo, error) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, errors.New("can't read the build info")
	}
	buildInfo := fromSettings(bi.Settings)
	buildInfo.GoVersion = bi.GoVersion
	return buildInfo, nil
}

func fromSettings(settings []debug.BuildSetting) *BuildInfo {
	buildInfo := BuildInfo{}

	for _, setting := range settings {
		key := setting.Key
		value := setting.Value

		switch key {
		case "GOARCH":
			buildInfo.GoArch = value
		case "GOOS":
			buildInfo.GoOs = value
		case "vcs.revision":
			buildInfo.VcsRevision = value
		case "vcs.time":
			buildInfo.VcsTime = value
		case "vcs.modified":
			buildInfo.VcsModified = value == "true"
		}
	}

	return &buildInfo
}

// VersionString renders the --version output. Values set at link time win
// over the ones recorded by the Go toolchain.
func VersionString(name, version, commit, date string, bi *BuildInfo) string {
	if bi == nil {
		bi = &BuildInfo{}
	}
	if commit == "" {
		commit = bi.VcsRevision
		if bi.VcsModified {
			commit += "-dirty"
		}
	}
	if date == "" {
		date = bi.VcsTime
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", name, version)
	if commit != "" {
		fmt.Fprintf(&sb, " (commit %s", commit)
		if date != "" {
			fmt.Fprintf(&sb, ", %s", date)
		}
		sb.WriteString(")")
	}
	if bi.GoVersion != "" {
		fmt.Fprintf(&sb, " %s", bi.GoVersion)
	}
	if bi.GoOs != "" && bi.GoArch != "" {
		fmt.Fprintf(&sb, " %s/%s", bi.GoOs, bi.GoArch)
	}
	return sb.String()
}
