package workers

import (
	"os"
	"runtime"
	"strconv"
)

// OverrideEnv names the variable that pins the ingestion pool size.
const OverrideEnv = "SCAN_WORKERS"

// Count returns a worker count of GOMAXPROCS scaled by multiplier, clamped to
// [1, limit]. A limit of 0 means no upper bound. A positive SCAN_WORKERS value
// replaces the computed count but is still clamped to limit.
func Count(multiplier float64, limit int) int {
	n := 0
	if override := os.Getenv(OverrideEnv); override != "" {
		if v, err := strconv.Atoi(override); err == nil && v > 0 {
			n = v
		}
	}

	if n == 0 {
		// GOMAXPROCS follows the container CPU quota since Go 1.19.
		n = int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	}

	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForCPU sizes pools whose items are dominated by decode/resize/encode work.
// This is the default size of the ingestion pool.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO sizes pools that mostly wait on disk, such as the orphan sweep.
func ForIO(limit int) int {
	return Count(2.0, limit)
}
