// Package metrics records evaluation pass metrics.
//
// Components hold a Recorder and default to NoopRecorder, so metrics never
// need nil checks at call sites:
//
//	type Orchestrator struct {
//	    recorder metrics.Recorder
//	}
//
// Swap in a PrometheusRecorder when metrics are enabled and expose the
// registry with HTTPHandler.
package metrics
