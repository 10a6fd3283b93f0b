package main

import (
	"fmt"
	"runtime"
)

// set by the release build
var (
	version = "dev"
	commit  = "none"
)

func main() {
	Execute()
}

func versionString() string {
	return fmt.Sprintf("swcache %s (%s, %s)", version, commit[:min(7, len(commit))], runtime.Version())
}
