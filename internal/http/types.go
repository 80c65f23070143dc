package http

import (
	"github.com/fyrsmithlabs/switchboard/internal/metrics"
	"github.com/fyrsmithlabs/switchboard/internal/selection"
	"github.com/fyrsmithlabs/switchboard/internal/tracker"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string   `json:"status"` // "ok" or "degraded"
	Version  string   `json:"version,omitempty"`
	Sessions int      `json:"sessions"`
	Reasons  []string `json:"reasons,omitempty"`
}

// QueryRequest is the request body for POST /api/v1/queries.
type QueryRequest struct {
	Query       string   `json:"query"`
	Specialists []string `json:"specialists,omitempty"`
	Complexity  float64  `json:"complexity,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
}

// SessionsResponse is the response body for GET /api/v1/sessions.
type SessionsResponse struct {
	Sessions []tracker.SessionState `json:"sessions"`
	Count    int                    `json:"count"`
}

// SessionLogResponse is the response body for GET /api/v1/sessions/:id/log.
type SessionLogResponse struct {
	SessionID string          `json:"session_id"`
	Events    []tracker.Event `json:"events"`
}

// ReloadResponse is the response body for POST /api/v1/specialists/:id/reload.
type ReloadResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ResourceStatus pairs a resource with its live metrics.
type ResourceStatus struct {
	metrics.Resource
	Stats metrics.Stats    `json:"stats"`
	Score *selection.Score `json:"score,omitempty"`
}

// ResourcesResponse is the response body for GET /api/v1/resources.
type ResourcesResponse struct {
	Task       string           `json:"task,omitempty"`
	Complexity float64          `json:"complexity,omitempty"`
	Resources  []ResourceStatus `json:"resources"`
}

// ErrorResponse is returned for failures that happen before a session
// exists.
type ErrorResponse struct {
	Error string `json:"error"`
}
