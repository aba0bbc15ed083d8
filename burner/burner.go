package burner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/n01d-forge/forge-sdk/bus"
	"github.com/n01d-forge/forge-sdk/constants"
	"github.com/n01d-forge/forge-sdk/digest"
	"github.com/n01d-forge/forge-sdk/erase"
	"github.com/n01d-forge/forge-sdk/types"
	"github.com/n01d-forge/forge-sdk/vault"
)

// VerifyAlgorithm is the hash used when comparing source and device after a
// write.
const VerifyAlgorithm = "sha256"

// Burner drives the pipeline stages over a shared OperationState. Bus is
// optional; when set, lifecycle events go out to provider plugins.
type Burner struct {
	State     *OperationState
	Formatter *vault.Formatter
	Logger    types.ForgeLogger
	Bus       *bus.Bus
}

func New(logger types.ForgeLogger) *Burner {
	return &Burner{
		State:     NewOperationState(),
		Formatter: vault.NewFormatter(logger),
		Logger:    logger,
	}
}

// Run executes the pipeline described by cfg and blocks until it finishes,
// fails or gets cancelled. A second Run while one is active returns
// ErrAlreadyRunning without touching the running pipeline.
func (b *Burner) Run(cfg types.BurnConfig) (*types.BurnResult, error) {
	if !b.State.begin() {
		return nil, types.ErrAlreadyRunning
	}
	b.State.startStage(StageIdle, 0)
	b.Bus.Emit(bus.EventBurnBefore, redactPassword(cfg))

	start := time.Now()
	result, err := b.run(cfg)
	switch {
	case err == nil:
		b.State.finish(StageComplete)
	case errors.Is(err, types.ErrOperationCancelled):
		b.State.finish(StageCancelled)
	case errors.Is(err, types.ErrSourceNotFound) && b.State.Progress().Stage == StageIdle:
		// Nothing was touched yet, so the state stays idle rather than failed.
		b.State.finish(StageIdle)
	default:
		b.State.finish(StageFailed)
	}

	if result != nil {
		result.Duration = time.Since(start)
	}
	if err != nil {
		b.Bus.Emit(bus.EventBurnError, map[string]string{"error": err.Error()})
	} else {
		b.Bus.Emit(bus.EventBurnAfter, result)
	}
	return result, err
}

// redactPassword copies the config with the passphrase blanked, so it can be
// handed to provider plugins.
func redactPassword(cfg types.BurnConfig) types.BurnConfig {
	if cfg.Encryption != nil {
		enc := *cfg.Encryption
		enc.Password = ""
		cfg.Encryption = &enc
	}
	return cfg
}

// stage advances the state machine and announces the transition. A pending
// cancel request stops the run here, before the next stage does any work.
func (b *Burner) stage(name string, total uint64) error {
	if b.State.Cancelled() {
		return types.ErrOperationCancelled
	}
	b.State.startStage(name, total)
	b.Bus.Emit(bus.EventBurnStage, map[string]string{"stage": name})
	return nil
}

func (b *Burner) run(cfg types.BurnConfig) (*types.BurnResult, error) {
	info, err := os.Stat(cfg.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrSourceNotFound, cfg.ImagePath, err)
	}
	imageSize := uint64(info.Size())

	b.Logger.Logger.Info().
		Str("image", cfg.ImagePath).
		Str("device", cfg.TargetDevice).
		Uint64("size", imageSize).
		Msg("Starting burn")

	if cfg.EraseBefore {
		if err := b.eraseStage(cfg); err != nil {
			return nil, err
		}
	}

	written, err := b.writeStage(cfg, imageSize)
	if err != nil {
		return nil, err
	}

	if cfg.Encryption != nil && cfg.Encryption.Enabled {
		if err := b.stage(StageConfiguringEncryption, 0); err != nil {
			return nil, err
		}
		settings := *cfg.Encryption
		if settings.Password == "" && b.Bus != nil {
			pass, err := b.Bus.DiscoverPassword(cfg.TargetDevice)
			if err != nil {
				return nil, fmt.Errorf("%w: no passphrase configured and discovery failed: %v", types.ErrRejectedInput, err)
			}
			settings.Password = pass
		}
		if err := b.Formatter.Format(cfg.TargetDevice, settings); err != nil {
			return nil, err
		}
	}

	if err := b.stage(StageConfiguringBootloader, 0); err != nil {
		return nil, err
	}
	if err := validateBootloader(cfg.Bootloader); err != nil {
		return nil, err
	}
	b.Logger.Logger.Info().
		Str("mode", cfg.Bootloader.Mode).
		Bool("secure_boot", cfg.Bootloader.SecureBoot).
		Bool("persistence", cfg.Bootloader.PersistentStorage).
		Msg("Bootloader configuration applied")

	result := &types.BurnResult{
		Success:      true,
		Message:      "burn completed",
		BytesWritten: written,
	}

	if cfg.VerifyAfterWrite {
		verification, err := b.verifyStage(cfg, imageSize)
		if err != nil {
			return nil, err
		}
		result.HashVerification = verification
		if !verification.Verified {
			// The write itself succeeded; the mismatch is reported, not fatal.
			result.Message = "burn completed, hash verification failed"
			b.Logger.Logger.Warn().
				Str("expected", verification.Expected).
				Str("actual", verification.Hex).
				Msg("Device hash does not match the source image")
		}
	}

	return result, nil
}

// Erase runs only the erase stage: the whole device is overwritten with the
// method's pass sequence. It claims the state like a full run does.
func (b *Burner) Erase(device string, method erase.Method) error {
	if !b.State.begin() {
		return types.ErrAlreadyRunning
	}

	size, err := deviceSize(device)
	if err == nil {
		b.State.startStage(StageErasing, size*uint64(method.Passes()))
		err = erase.EraseDevice(device, size, method, b.State, b.Logger)
	}

	switch {
	case err == nil:
		b.State.finish(StageComplete)
	case errors.Is(err, types.ErrOperationCancelled):
		b.State.finish(StageCancelled)
	default:
		b.State.finish(StageFailed)
	}
	return err
}

// eraseStage overwrites the whole device before the image lands on it.
func (b *Burner) eraseStage(cfg types.BurnConfig) error {
	method, err := erase.ParseMethod(cfg.EraseMethod, cfg.ErasePasses)
	if err != nil {
		return err
	}

	size, err := deviceSize(cfg.TargetDevice)
	if err != nil {
		return err
	}

	if err := b.stage(StageErasing, size*uint64(method.Passes())); err != nil {
		return err
	}
	return erase.EraseDevice(cfg.TargetDevice, size, method, b.State, b.Logger)
}

// writeStage streams the image onto the device in fixed chunks, checking the
// cancel flag between chunks, and syncs before returning.
func (b *Burner) writeStage(cfg types.BurnConfig, imageSize uint64) (uint64, error) {
	src, err := os.Open(cfg.ImagePath)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", types.ErrSourceNotFound, cfg.ImagePath, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(cfg.TargetDevice, os.O_WRONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", types.ErrDeviceOpenFailed, cfg.TargetDevice, err)
	}
	defer dst.Close()

	if err := b.stage(StageWriting, imageSize); err != nil {
		return 0, err
	}

	var written uint64
	buf := make([]byte, constants.BurnChunkSize)
	for {
		if b.State.Cancelled() {
			return written, types.ErrOperationCancelled
		}

		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("%w: writing to device: %v", types.ErrIoFailure, werr)
			}
			written += uint64(n)
			b.State.Add(uint64(n))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, fmt.Errorf("%w: reading image: %v", types.ErrIoFailure, rerr)
		}
	}

	if err := dst.Sync(); err != nil {
		return written, fmt.Errorf("%w: sync after write: %v", types.ErrIoFailure, err)
	}

	b.Logger.Logger.Info().Uint64("bytes", written).Msg("Image written")
	return written, nil
}

// verifyStage hashes the source image and the device side by side. The device
// read is capped to the image length so trailing device capacity does not
// poison the comparison.
func (b *Burner) verifyStage(cfg types.BurnConfig, imageSize uint64) (*types.DigestResult, error) {
	if err := b.stage(StageVerifying, imageSize*2); err != nil {
		return nil, err
	}

	source, err := digest.File(cfg.ImagePath, VerifyAlgorithm, b.State)
	if err != nil {
		return nil, err
	}

	dev, err := os.Open(cfg.TargetDevice)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrDeviceOpenFailed, cfg.TargetDevice, err)
	}
	defer dev.Close()

	device, err := digest.Digest(dev, VerifyAlgorithm, int64(imageSize), b.State)
	if err != nil {
		return nil, err
	}

	device.Expected = source.Hex
	device.Verified = device.Hex == source.Hex
	return device, nil
}

// validateBootloader checks the declarative boot settings before they are
// recorded. Unknown modes never reach the device.
func validateBootloader(cfg types.BootloaderConfig) error {
	switch cfg.Mode {
	case "uefi", "legacy", "hybrid":
	default:
		return fmt.Errorf("%w: unknown bootloader mode %q", types.ErrRejectedInput, cfg.Mode)
	}
	if cfg.PersistentStorage && cfg.PersistentSizeMB == 0 {
		return fmt.Errorf("%w: persistent storage enabled with zero size", types.ErrRejectedInput)
	}
	return nil
}

// deviceSize resolves the writable extent of the target by seeking to its
// end, which works for block devices and for regular files alike.
func deviceSize(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", types.ErrDeviceOpenFailed, path, err)
	}
	defer f.Close()

	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("%w: sizing %s: %v", types.ErrIoFailure, path, err)
	}
	return uint64(end), nil
}
