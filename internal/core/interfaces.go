package core

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/idorenum/pkg/types"
)

// ProbeStore persists enumeration runs and the responses seen for each index.
type ProbeStore interface {
	SaveRun(ctx context.Context, run *types.Run) error
	UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus) error
	SaveProbe(ctx context.Context, probe *types.Probe) error
	GetProbes(ctx context.Context, runID string) ([]types.Probe, error)
	Close() error
}

type Telemetry interface {
	RecordProbe(ctx context.Context, statusCode int, duplicate bool)
	Close() error
}
