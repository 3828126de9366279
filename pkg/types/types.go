package types

import (
	"encoding/json"
	"time"
)

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusStopped RunStatus = "stopped"
	RunStatusFailed  RunStatus = "failed"
)

// Run is one invocation of the enumerator against an endpoint.
type Run struct {
	ID         string    `json:"id" db:"id"`
	Endpoint   string    `json:"endpoint" db:"endpoint"`
	Selector   string    `json:"selector" db:"selector"`
	CookieName string    `json:"cookie_name,omitempty" db:"cookie_name"`
	Status     RunStatus `json:"status" db:"status"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Probe is the response observed for a single enumeration index.
type Probe struct {
	RunID       string          `json:"run_id" db:"run_id"`
	Index       int64           `json:"index" db:"idx"`
	URL         string          `json:"url" db:"url"`
	StatusCode  int             `json:"status_code" db:"status_code"`
	Fingerprint string          `json:"fingerprint" db:"fingerprint"`
	DuplicateOf *int64          `json:"duplicate_of,omitempty" db:"duplicate_of"`
	Body        json.RawMessage `json:"body" db:"body"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// IsDuplicate reports whether the body matched an earlier index in the same run.
func (p *Probe) IsDuplicate() bool {
	return p.DuplicateOf != nil
}
