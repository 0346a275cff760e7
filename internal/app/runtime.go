package app

import (
	"os"
	"sync"
)

const testModeEnv = "WHEELWORKS_TEST_MODE"

var (
	testMode     bool
	testModeOnce sync.Once
)

// InTestMode reports whether the process should skip runtime side effects.
// The test bootstrap sets WHEELWORKS_TEST_MODE=1 before any package main
// logic runs.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testMode = os.Getenv(testModeEnv) == "1"
	})
	return testMode
}
