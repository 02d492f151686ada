package models

import "time"

// ErrorResponse wraps an ErrorDetail for non-2xx responses.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// StartResponse is returned by POST /api/start/:tab.
type StartResponse struct {
	Status  string `json:"status"` // "started"
	Tab     string `json:"tab"`
	Total   int    `json:"total"`
	Workers int    `json:"workers"`
}

// StopResponse is returned by POST /api/stop/:tab.
type StopResponse struct {
	Status string `json:"status"` // "stop_requested"
}

// StatusResponse is returned by GET /api/status/:tab.
type StatusResponse struct {
	Running bool `json:"running"`
}

// ClearResponse is returned by POST /api/clear-results/:tab.
type ClearResponse struct {
	Status string `json:"status"` // "cleared"
}

// DeleteResultResponse is returned by POST /api/delete-result/:tab.
type DeleteResultResponse struct {
	Status    string `json:"status"` // "deleted"
	Remaining int    `json:"remaining"`
}

// RunRecord is an archived job run.
type RunRecord struct {
	ID         string    `json:"id"`
	Tab        string    `json:"tab"`
	Status     Status    `json:"status"`
	Total      int       `json:"total"`
	Completed  int       `json:"completed"`
	Found      int       `json:"found"`
	Message    string    `json:"message,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Results    []Result  `json:"results,omitempty"`
}

// HistoryResponse is returned by GET /api/history/:tab.
type HistoryResponse struct {
	Tab  string      `json:"tab"`
	Runs []RunRecord `json:"runs"`
}

// HealthResponse is the response for GET /api/health.
type HealthResponse struct {
	Status     string   `json:"status"` // "healthy"
	Uptime     string   `json:"uptime"`
	Driver     string   `json:"driver"`
	Tabs       []string `json:"tabs"`
	RunningJob []string `json:"running_jobs"`
	Version    string   `json:"version"`
}
