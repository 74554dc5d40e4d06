// Package memory configures GOMEMLIMIT for containers and gives the
// ingestion pool a backpressure signal.
//
// Call [ConfigureFromEnv] at the top of main. It derives GOMEMLIMIT from
// MEMORY_LIMIT and MEMORY_RATIO unless GOMEMLIMIT is already set.
//
// A [Monitor] samples heap allocation. Above the critical watermark it pauses
// callers of [Monitor.WaitIfPaused] until usage drops back below the high
// watermark. Pool workers call it between items, never mid-item.
package memory
