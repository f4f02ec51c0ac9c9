// Package metrics provides deployment observability hooks. Components
// receive a Recorder through dependency injection; NoopRecorder is the
// default when metrics are not configured.
package metrics

import "time"

// OutcomeLabel enumerates terminal deployment categories for counters.
type OutcomeLabel string

const (
	OutcomeSuccess   OutcomeLabel = "success"
	OutcomeWarning   OutcomeLabel = "warning"
	OutcomeFailure   OutcomeLabel = "failure"
	OutcomeCancelled OutcomeLabel = "cancelled"
	OutcomeError     OutcomeLabel = "error"
)

// Recorder defines the observability hooks the dispatcher drives.
// Implementations must be safe for concurrent use.
type Recorder interface {
	IncWebhookEvent(event string)
	IncDeployOutcome(trigger string, outcome OutcomeLabel)
	IncPushRetry()
	ObserveDeployDuration(outcome OutcomeLabel, d time.Duration)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) IncWebhookEvent(string)                            {}
func (NoopRecorder) IncDeployOutcome(string, OutcomeLabel)             {}
func (NoopRecorder) IncPushRetry()                                     {}
func (NoopRecorder) ObserveDeployDuration(OutcomeLabel, time.Duration) {}
