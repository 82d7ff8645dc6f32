package http

import (
	"github.com/fyrsmithlabs/complyd/internal/memory"
	"github.com/fyrsmithlabs/complyd/internal/profile"
)

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	Query       string `json:"query" validate:"required,min=5"`
	SkipMemory  bool   `json:"skip_memory"`
	AutoApprove *bool  `json:"auto_approve"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// SearchResponse is the response body for GET /api/v1/memory/search.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []memory.Record `json:"results"`
}

// ClearResponse reports how many memories were deleted.
type ClearResponse struct {
	Deleted int `json:"deleted"`
}

// ProfileResponse is the response body for GET /api/v1/profile.
type ProfileResponse struct {
	Profile profile.Profile `json:"profile"`
	Stats   profile.Stats   `json:"stats"`
	Summary string          `json:"summary"`
}
