// Package build provides variables that are set at build-time
// with the -X ldflag. If the values are not given at build-time,
// they will be determined from [debug.BuildInfo].
package build

import (
	"regexp"
	"sync"
)

var (
	pkg       string
	version   string
	buildTime string
)

var once sync.Once

var semverPattern = regexp.MustCompile(`v?\d+(\.\d+){0,2}`)

func semver(v string) string {
	loc := semverPattern.FindStringIndex(v)
	if loc == nil {
		return v
	}
	return v[loc[0]:loc[1]]
}

func utcSuffix(t string) string {
	if n := len(t); n > 0 && t[n-1] == 'Z' {
		return t[:n-1] + "+00:00"
	}
	return t
}

// Package returns the main module path, e.g. "github.com/lone-faerie/sensorlink".
func Package() string {
	once.Do(load)
	return pkg
}

// Version returns the version of the main module, or "(devel)".
func Version() string {
	once.Do(load)
	if version == "" {
		return "(devel)"
	}
	return version
}

// BuildTime returns the VCS commit time of the build, if known.
func BuildTime() string {
	once.Do(load)
	return buildTime
}
