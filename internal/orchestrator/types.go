package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/switchboard/internal/tracker"
)

var (
	// ErrEmptyQuery is returned before any session is opened.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrInvalidSessionID is returned for a malformed requested session id.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrNoSpecialists means no specialist matched the query.
	ErrNoSpecialists = errors.New("no specialists available")

	// ErrGenerationFailed means every participant failed to produce an answer.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrTimeout means the session exceeded its timeout.
	ErrTimeout = errors.New("session timed out")

	// ErrCanceled means the caller canceled the query.
	ErrCanceled = errors.New("query canceled")
)

// ErrorKind classifies a failed query.
type ErrorKind string

const (
	KindNoSpecialists       ErrorKind = "no_specialists"
	KindNoResourceAvailable ErrorKind = "no_resource_available"
	KindGenerationFailed    ErrorKind = "generation_failed"
	KindTimeout             ErrorKind = "timeout"
	KindCanceled            ErrorKind = "canceled"
)

var kindMessages = map[ErrorKind]string{
	KindNoSpecialists:       "no specialist is available for this query",
	KindNoResourceAvailable: "no resource is available to run this query",
	KindGenerationFailed:    "the query could not be answered",
	KindTimeout:             "the query timed out",
	KindCanceled:            "the query was canceled",
}

// Message returns the user-facing message for k.
func (k ErrorKind) Message() string {
	if m, ok := kindMessages[k]; ok {
		return m
	}
	return "the query failed"
}

// Status is the outcome of a query.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// QueryContext carries optional per-query overrides.
type QueryContext struct {
	// Specialists restricts the query to these specialist ids, in order.
	Specialists []string `json:"specialists,omitempty"`

	// Complexity in [0,1]. Zero means estimate from the query.
	Complexity float64 `json:"complexity,omitempty"`

	// SessionID replaces the generated session id.
	SessionID string `json:"session_id,omitempty"`
}

// Contribution is one participant's share of a result.
type Contribution struct {
	Specialist   string        `json:"specialist"`
	Role         string        `json:"role"`
	Resource     string        `json:"resource,omitempty"`
	Model        string        `json:"model,omitempty"`
	Answer       string        `json:"answer,omitempty"`
	Latency      time.Duration `json:"latency_ns"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Quality      float64       `json:"quality"`
	ErrorKind    ErrorKind     `json:"error_kind,omitempty"`
}

// Succeeded reports whether the participant produced an answer.
func (c Contribution) Succeeded() bool {
	return c.ErrorKind == ""
}

// Result is what SelectAndRun returns.
type Result struct {
	SessionID     string         `json:"session_id"`
	Status        Status         `json:"status"`
	Answer        string         `json:"answer,omitempty"`
	Complexity    float64        `json:"complexity"`
	Contributions []Contribution `json:"contributions"`
	ErrorKind     ErrorKind      `json:"error_kind,omitempty"`
	Error         string         `json:"error,omitempty"`
	Duration      time.Duration  `json:"duration_ns"`
}

// Observer is notified of query progress. Calls for one query come from a
// single goroutine in order.
type Observer interface {
	OnParticipant(ctx context.Context, sessionID, participant string, state tracker.State)
	OnFinished(ctx context.Context, result *Result)
}

// ObserverFuncs adapts optional functions to the Observer interface.
type ObserverFuncs struct {
	Participant func(ctx context.Context, sessionID, participant string, state tracker.State)
	Finished    func(ctx context.Context, result *Result)
}

// OnParticipant implements Observer.
func (o ObserverFuncs) OnParticipant(ctx context.Context, sessionID, participant string, state tracker.State) {
	if o.Participant != nil {
		o.Participant(ctx, sessionID, participant, state)
	}
}

// OnFinished implements Observer.
func (o ObserverFuncs) OnFinished(ctx context.Context, result *Result) {
	if o.Finished != nil {
		o.Finished(ctx, result)
	}
}
