// Package model holds the store-facing run records shared by the store,
// the server, and the commands.
package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// RunStatus represents the current state of a clustering run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// ParseRunStatus validates a status string from config or query parameters.
func ParseRunStatus(s string) (RunStatus, error) {
	switch RunStatus(s) {
	case RunStatusRunning, RunStatusComplete, RunStatusFailed:
		return RunStatus(s), nil
	}
	return "", eris.Errorf("model: unknown run status %q (use running, complete, or failed)", s)
}

// Run is one persisted clustering run. Params and Result carry the JSON
// documents the pipeline produced, stored verbatim so the API can serve
// them without re-encoding.
type Run struct {
	ID        string          `json:"id"`
	Dataset   string          `json:"dataset"`
	Status    RunStatus       `json:"status"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ChosenK   int             `json:"chosen_k,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Terminal reports whether the run has finished, successfully or not.
func (r *Run) Terminal() bool {
	return r.Status == RunStatusComplete || r.Status == RunStatusFailed
}

// RunRegion carries one region's cluster assignments and geometry for a
// completed run. Labels maps variant name to the 1-based cluster label;
// Geometry holds the region outline as EWKB.
type RunRegion struct {
	RunID    string         `json:"run_id"`
	RegionID string         `json:"region_id"`
	Name     string         `json:"name,omitempty"`
	Labels   map[string]int `json:"labels"`
	Geometry []byte         `json:"-"`
}

// Label returns the cluster label assigned by the named variant.
func (rr *RunRegion) Label(variant string) (int, bool) {
	l, ok := rr.Labels[variant]
	return l, ok
}
