/*
Package workers sizes goroutine pools from GOMAXPROCS rather than
runtime.NumCPU, so a container with a 2-CPU quota on a 64-core node gets
2 ingestion workers instead of 64.

	n := workers.ForCPU(0)  // one per available CPU
	n := workers.ForIO(16)  // two per CPU, at most 16

SCAN_WORKERS overrides the computed value for every helper.
*/
package workers
