// Package burner runs the full image pipeline: optional secure erase, raw
// image write, encryption and bootloader setup, and hash verification. One
// pipeline runs at a time per OperationState.
package burner

import (
	"sync"
	"sync/atomic"

	"github.com/n01d-forge/forge-sdk/types"
)

// Stage labels reported through ProgressSnapshot.
const (
	StageIdle                  = "idle"
	StageErasing               = "erasing"
	StageWriting               = "writing"
	StageConfiguringEncryption = "configuring_encryption"
	StageConfiguringBootloader = "configuring_bootloader"
	StageVerifying             = "verifying"
	StageComplete              = "complete"
	StageCancelled             = "cancelled"
	StageFailed                = "failed"
)

// OperationState tracks a running pipeline. All counters are atomics so
// pollers never block the hot write loop; only the stage label takes a lock.
// It doubles as the progress sink handed to the erase and digest engines.
type OperationState struct {
	inProgress atomic.Bool
	cancel     atomic.Bool
	bytesDone  atomic.Uint64
	totalBytes atomic.Uint64

	mu    sync.Mutex
	stage string
}

func NewOperationState() *OperationState {
	return &OperationState{stage: StageIdle}
}

// begin claims the in-progress flag. Exactly one caller wins. The cancel
// flag is cleared here so a Cancel racing the end of the previous run cannot
// leak into this one.
func (s *OperationState) begin() bool {
	if !s.inProgress.CompareAndSwap(false, true) {
		return false
	}
	s.cancel.Store(false)
	return true
}

// finish releases the in-progress flag and records the terminal stage. The
// cancel flag is reset so the next run starts clean.
func (s *OperationState) finish(stage string) {
	s.setStage(stage)
	s.cancel.Store(false)
	s.inProgress.Store(false)
}

func (s *OperationState) setStage(stage string) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

// startStage resets the byte counters for a new stage with its own total.
func (s *OperationState) startStage(stage string, total uint64) {
	s.bytesDone.Store(0)
	s.totalBytes.Store(total)
	s.setStage(stage)
}

// Running reports whether a pipeline currently holds the state.
func (s *OperationState) Running() bool {
	return s.inProgress.Load()
}

// Cancel requests that the running pipeline stop at the next chunk boundary.
// Safe to call at any time, including when nothing runs; repeat calls are
// no-ops.
func (s *OperationState) Cancel() {
	if s.inProgress.Load() {
		s.cancel.Store(true)
	}
}

// Add accumulates completed bytes for the current stage.
func (s *OperationState) Add(delta uint64) {
	s.bytesDone.Add(delta)
}

// Cancelled reports whether a stop was requested.
func (s *OperationState) Cancelled() bool {
	return s.cancel.Load()
}

// Progress returns a consistent-enough snapshot for polling. Percent is 0
// while the total for the current stage is unknown.
func (s *OperationState) Progress() types.ProgressSnapshot {
	s.mu.Lock()
	stage := s.stage
	s.mu.Unlock()

	done := s.bytesDone.Load()
	total := s.totalBytes.Load()

	percent := 0.0
	if total > 0 {
		percent = float64(done) / float64(total) * 100
		if percent > 100 {
			percent = 100
		}
	}

	return types.ProgressSnapshot{
		Stage:      stage,
		Percent:    percent,
		BytesDone:  done,
		TotalBytes: total,
	}
}
