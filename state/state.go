// Package state exposes a queryable snapshot of what the tool sees: the
// drives on the system and the progress of the running operation.
package state

import (
	"github.com/n01d-forge/forge-sdk/block"
	"github.com/n01d-forge/forge-sdk/types"
)

// Runtime is one observation, safe to serialize and query. It does not
// update itself; take a new one to refresh.
type Runtime struct {
	Operation  types.ProgressSnapshot `json:"operation" yaml:"operation"`
	Drives     []*types.DriveInfo     `json:"drives" yaml:"drives"`
	LastResult *types.BurnResult      `json:"last_result,omitempty" yaml:"last_result,omitempty"`
}

// Observer produces Runtime snapshots.
type Observer struct {
	Paths    *block.Paths
	Progress func() types.ProgressSnapshot
	Logger   *types.ForgeLogger
}

// Observe scans the block layer and captures the current operation progress.
func (o Observer) Observe() Runtime {
	r := Runtime{
		Drives: block.GetDrives(o.Paths, o.Logger),
	}
	if o.Progress != nil {
		r.Operation = o.Progress()
	}
	return r
}
