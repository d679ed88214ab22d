package config

import (
	"os"
	"strings"
)

// DisablePhaseSingleFlight skips the redis lock around build/receive runs.
// Only meant for local development against a throwaway database.
//
// Set via env:
// - DISABLE_PHASE_SINGLE_FLIGHT=true
func DisablePhaseSingleFlight() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DISABLE_PHASE_SINGLE_FLIGHT")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// PhaseWorkerCount bounds the map-step worker pool per phase run.
//
// Set via env:
// - PHASE_WORKER_COUNT (default 8)
func PhaseWorkerCount() int {
	n := intFromEnv("PHASE_WORKER_COUNT", 8)
	if n < 1 {
		return 1
	}
	return n
}
