/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Result tables are
  served as the finance record types directly; only the run envelope
  and requests get their own types here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - presets.go: Named parameter sets
*/
package api

import (
	"encoding/json"

	"github.com/warp/water-finance/finance"
	"github.com/warp/water-finance/rollover"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CreateRunRequest asks for a batch of realizations.
// Zero values fall back to the server's configured run settings.
type CreateRunRequest struct {
	Label        string `json:"label"`
	Preset       string `json:"preset"`
	StartYear    int    `json:"start_year"`
	EndYear      int    `json:"end_year"`
	Realizations int    `json:"realizations"`
	Seed         *int64 `json:"seed"`
	Workers      int    `json:"workers"`

	// Params is merged field by field over the preset's parameters.
	Params json.RawMessage `json:"params,omitempty"`
}

// RunDTO is a run header plus the outcome of every realization.
type RunDTO struct {
	rollover.Run
	Outcomes []rollover.OutcomeRecord `json:"outcomes,omitempty"`
}

// RunListDTO wraps the run list.
type RunListDTO struct {
	Runs []rollover.Run `json:"runs"`
}

// PresetDTO describes a named parameter set.
type PresetDTO struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Params      finance.ScenarioParameters `json:"params"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
