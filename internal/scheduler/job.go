package scheduler

import (
	"github.com/Devliang24/casecraft/internal/scoring"
	"github.com/Devliang24/casecraft/internal/spec"
)

// JobState names a job's position in the state machine from spec.md §4.8.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateValidated JobState = "validated"
	StateWritten   JobState = "written"
	StateDone      JobState = "done"
	StateRetrying  JobState = "retry_same_provider"
	StateFallback  JobState = "next_in_chain"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
	StateSkipped   JobState = "skipped"
)

// Job is one endpoint's generation unit, per spec.md §3.
type Job struct {
	ID              string
	Endpoint        *spec.Endpoint
	Fingerprint     string
	PrimaryProvider string
	FallbackChain   []string
	Budget          scoring.Budget
}

// Event is one discrete progress point the scheduler multiplexes onto its
// single fan-in channel, per spec.md §4.8.
type Event struct {
	JobID       string
	EndpointKey string
	Provider    string
	State       JobState
	Attempt     int
	Percent     int
	Err         error
}

// Result is one job's terminal outcome.
type Result struct {
	Job          Job
	State        JobState
	Provider     string
	FallbackFrom string
	ArtifactPath string
	TestCount    int
	RetryCount   int
	Err          error
}
