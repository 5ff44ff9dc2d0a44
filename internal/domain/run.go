package domain

import (
	"time"
)

// Route is how a run obtained its matches.
type Route string

const (
	// RouteLocal fetches the full universe and evaluates every condition in process.
	RouteLocal Route = "local"

	// RouteRemote projects the strategy onto the remote filter endpoint.
	// The remote result is an approximation of the strategy.
	RouteRemote Route = "remote"
)

// Run is the persisted result of executing a strategy against a market.
type Run struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenantId"`
	StrategyID  string        `json:"strategyId,omitempty"`
	Market      string        `json:"market"`
	Route       Route         `json:"route"`
	Description string        `json:"description"`
	Params      *ParameterSet `json:"params,omitempty"`
	Records     []Record      `json:"records"`
	Total       int           `json:"total"`
	Scanned     int           `json:"scanned"`
	Pages       int           `json:"pages,omitempty"`
	Summary     []FieldStats  `json:"summary,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`

	Metadata RunMetadata `json:"metadata"`
}

// FieldStats summarizes one field over the matched records.
type FieldStats struct {
	Field  string  `json:"field"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// RunMetadata contains processing information.
type RunMetadata struct {
	TraceID       string `json:"traceId"`
	FetchMs       int64  `json:"fetchMs"`
	EvalMs        int64  `json:"evalMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}

// RunRequest is the bus payload asking a worker to run a saved strategy.
type RunRequest struct {
	RunID      string `json:"runId"`
	TenantID   string `json:"tenantId,omitempty"`
	StrategyID string `json:"strategyId"`
	Market     string `json:"market"`
}

// RunCompleted is the bus payload announcing a finished run.
type RunCompleted struct {
	RunID      string `json:"runId"`
	TenantID   string `json:"tenantId"`
	StrategyID string `json:"strategyId"`
	Total      int    `json:"total"`
	Error      string `json:"error,omitempty"`
}
