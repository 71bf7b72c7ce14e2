package api

import (
	"github.com/glefebvre/livetv/internal/dryrun"
	"github.com/glefebvre/livetv/internal/models"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the /health payload
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Error  string `json:"error,omitempty"`
}

// CleanupResponse reports one sweep. Report is only set on dry runs.
type CleanupResponse struct {
	Record models.CleanupRecord `json:"record"`
	Report *dryrun.Report       `json:"report,omitempty"`
}

// EnrichResponse lists the candidates scraped for a channel
type EnrichResponse struct {
	Name       string             `json:"name"`
	Forced     bool               `json:"forced"`
	Candidates []models.Candidate `json:"candidates"`
}

// GenresResponse reports a genre extraction
type GenresResponse struct {
	Genres       []string `json:"genres"`
	HashChanged  bool     `json:"hashChanged"`
	Persisted    bool     `json:"persisted"`
	SkippedEmpty bool     `json:"skippedEmpty"`
	ForceRefresh bool     `json:"forceRefresh"`
	LastUpdated  string   `json:"lastUpdated,omitempty"`
}
