package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GoVersion returns the Go runtime version string.
func GoVersion() string { return runtime.Version() }

// UserAgent is the identifier sent to the bridge and oracle services.
func UserAgent() string { return fmt.Sprintf("hyperos-agent/%s", Version) }
