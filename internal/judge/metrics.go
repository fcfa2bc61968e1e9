package judge

import "time"

// Metrics is the sink the worker reports grading outcomes to. Injected
// so tests can observe counts without global collector state.
type Metrics interface {
	IncTotal()
	IncAccepted()
	IncRejected()
	IncFailed()
	RecordExecutionTime(ms int64)
	ObservePipelineDuration(d time.Duration)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) IncTotal()                               {}
func (NopMetrics) IncAccepted()                            {}
func (NopMetrics) IncRejected()                            {}
func (NopMetrics) IncFailed()                              {}
func (NopMetrics) RecordExecutionTime(ms int64)            {}
func (NopMetrics) ObservePipelineDuration(d time.Duration) {}
