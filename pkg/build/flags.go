// SPDX-License-Identifier: MIT
//
// Package build exposes the build metadata injected with -ldflags:
//
//	go build -ldflags "-X audiohost/pkg/build.buildName=audiohost \
//	    -X audiohost/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds run with the "dev" defaults; Initialize reports which
// flags were missing so release tooling can reject incomplete binaries.
package build

import (
	"errors"
	"fmt"
)

// Info is the resolved build metadata.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String renders the metadata for --version output.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = &Info{
		Name:        "audiohost",
		Description: "Real-time audio host for effect and visualization modules",
		Time:        "dev",
		Commit:      "dev",
		Version:     "dev",
	}
)

// Initialize copies every non-empty ldflags value into the build info.
// Missing values keep their development defaults and are reported in the
// returned error.
func Initialize() error {
	var errs []error
	set := func(dst *string, val, flag string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", flag))
			return
		}
		*dst = val
	}

	set(&buildInfo.Name, buildName, "BuildName")
	set(&buildInfo.Time, buildTime, "BuildTime")
	set(&buildInfo.Commit, buildCommit, "BuildCommit")
	set(&buildInfo.Version, buildVersion, "BuildVersion")

	return errors.Join(errs...)
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildInfo
}
