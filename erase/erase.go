package erase

import (
	"fmt"
	"io"
	"os"

	"github.com/n01d-forge/forge-sdk/constants"
	"github.com/n01d-forge/forge-sdk/types"
)

// Target is what we need from a device to erase it. *os.File satisfies it.
type Target interface {
	io.Writer
	io.Seeker
	Sync() error
}

// Erase overwrites the first size bytes of dev once per pass of the method.
// Every pass seeks back to offset 0 before writing, random chunks are
// re-drawn for every chunk, and the device is synced after the final pass.
// Any write or seek error aborts the whole erase; the caller decides whether
// to re-run from pass 0. A size of zero completes trivially.
func Erase(dev Target, size uint64, method Method, sink types.ProgressSink, logger types.ForgeLogger) error {
	passes := method.Passes()
	logger.Logger.Info().Str("method", method.String()).Int("passes", passes).Uint64("size", size).Msg("Starting erase")

	buf := make([]byte, constants.BurnChunkSize)
	for pass := 0; pass < passes; pass++ {
		if sink != nil && sink.Cancelled() {
			return types.ErrOperationCancelled
		}

		if _, err := dev.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("%w: seek before pass %d: %v", types.ErrIoFailure, pass, err)
		}

		pattern := method.patternForPass(pass)
		logger.Logger.Debug().Int("pass", pass).Bool("random", pattern.IsRandom()).Msg("Writing pass")
		if err := writePass(dev, size, pattern, buf, sink); err != nil {
			return fmt.Errorf("pass %d: %w", pass, err)
		}
	}

	if err := dev.Sync(); err != nil {
		return fmt.Errorf("%w: sync after erase: %v", types.ErrIoFailure, err)
	}

	logger.Logger.Info().Str("method", method.String()).Msg("Erase completed")
	return nil
}

// writePass streams one full sweep of pattern across the first size bytes.
func writePass(dev Target, size uint64, pattern Pattern, buf []byte, sink types.ProgressSink) error {
	// Non-random patterns are filled once and reused for every chunk.
	if !pattern.IsRandom() {
		if err := pattern.Fill(buf); err != nil {
			return err
		}
	}

	var written uint64
	for written < size {
		if sink != nil && sink.Cancelled() {
			return types.ErrOperationCancelled
		}

		toWrite := uint64(len(buf))
		if remaining := size - written; remaining < toWrite {
			toWrite = remaining
		}

		if pattern.IsRandom() {
			if err := pattern.Fill(buf[:toWrite]); err != nil {
				return err
			}
		}

		if _, err := dev.Write(buf[:toWrite]); err != nil {
			return fmt.Errorf("%w: write: %v", types.ErrIoFailure, err)
		}

		written += toWrite
		if sink != nil {
			sink.Add(toWrite)
		}
	}
	return nil
}

// EraseDevice opens the device at path for writing and runs Erase over it.
// Opening a mounted or busy device is expected to fail at the OS level.
func EraseDevice(path string, size uint64, method Method, sink types.ProgressSink, logger types.ForgeLogger) error {
	dev, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrDeviceOpenFailed, path, err)
	}
	defer dev.Close()

	return Erase(dev, size, method, sink, logger)
}
