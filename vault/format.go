package vault

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jaypipes/ghw"

	"github.com/n01d-forge/forge-sdk/types"
)

// Runner executes an external formatting tool. Split out so tests can check
// the command lines we build without touching a device.
type Runner interface {
	Run(stdin, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands for real.
type ExecRunner struct{}

func (ExecRunner) Run(stdin, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	return cmd.CombinedOutput()
}

// Formatter sets up on-disk encryption by driving an external tool
// (cryptsetup). Header and key construction stay in this package; the
// container format itself is the tool's business.
type Formatter struct {
	Runner Runner
	Logger types.ForgeLogger
	// Lookup validates the target before we hand it to the tool.
	Lookup func(device string) error
}

func NewFormatter(logger types.ForgeLogger) *Formatter {
	return &Formatter{
		Runner: ExecRunner{},
		Logger: logger,
		Lookup: lookupBlockDevice,
	}
}

// Format prepares encryption on the device according to the settings. The
// image already written to the device is not rolled back on failure.
func (f *Formatter) Format(device string, settings types.EncryptionSettings) error {
	switch strings.ToLower(settings.Type) {
	case "luks", "luks2":
		return f.luksFormat(device, settings)
	case "veracrypt":
		// Formatting a VeraCrypt container needs the veracrypt CLI, which we
		// do not drive yet.
		return fmt.Errorf("%w: veracrypt container formatting is not supported, install and run the veracrypt CLI", types.ErrRejectedInput)
	default:
		return fmt.Errorf("%w: unknown encryption type %q", types.ErrRejectedInput, settings.Type)
	}
}

func (f *Formatter) luksFormat(device string, settings types.EncryptionSettings) error {
	if f.Lookup != nil {
		if err := f.Lookup(device); err != nil {
			return err
		}
	}

	args := LuksFormatArgs(settings)
	args = append(args, device)

	f.Logger.Logger.Info().Str("device", device).Str("cipher", settings.Cipher).Msg("Creating LUKS2 container")
	f.Logger.Logger.Debug().Str("args", strings.Join(args, " ")).Msg("running cryptsetup")
	out, err := f.Runner.Run(settings.Password, "cryptsetup", args...)
	if err != nil {
		return fmt.Errorf("%w: cryptsetup luksFormat: %v, out: %s", types.ErrIoFailure, err, string(out))
	}

	f.Logger.Logger.Debug().Str("device", device).Msg("Adding passphrase keyslot")
	out, err = f.Runner.Run(settings.Password+"\n", "cryptsetup", "luksAddKey", "--batch-mode", device)
	if err != nil {
		return fmt.Errorf("%w: cryptsetup luksAddKey: %v, out: %s", types.ErrIoFailure, err, string(out))
	}

	f.Logger.Logger.Info().Str("device", device).Msg("Encryption setup completed")
	return nil
}

// LuksFormatArgs builds the cryptsetup luksFormat argument list for the
// given settings, without the trailing device path.
func LuksFormatArgs(settings types.EncryptionSettings) []string {
	settings = withEncryptionDefaults(settings)

	iterTime := settings.Iterations / 1000
	if iterTime < 1 {
		iterTime = 1
	}

	return []string{
		"luksFormat",
		"--type", "luks2",
		"--cipher", settings.Cipher,
		"--key-size", strconv.FormatUint(uint64(settings.KeySize), 10),
		"--hash", settings.HashAlgorithm,
		"--iter-time", strconv.FormatUint(uint64(iterTime), 10),
		"--batch-mode",
	}
}

// withEncryptionDefaults fills in the defaults for fields the caller left
// empty: aes-xts-plain64, 512-bit keys, sha512, 100k iterations.
func withEncryptionDefaults(s types.EncryptionSettings) types.EncryptionSettings {
	switch s.Cipher {
	case "aes-xts-plain64", "serpent-xts-plain64", "twofish-xts-plain64":
	default:
		s.Cipher = "aes-xts-plain64"
	}
	if s.KeySize == 0 {
		s.KeySize = 512
	}
	if s.HashAlgorithm == "" {
		s.HashAlgorithm = "sha512"
	}
	if s.Iterations == 0 {
		s.Iterations = 100000
	}
	return s
}

// lookupBlockDevice checks that the device is present in the block topology
// before any destructive call reaches it.
func lookupBlockDevice(device string) error {
	blk, err := ghw.Block()
	if err != nil {
		return fmt.Errorf("%w: scanning block devices: %v", types.ErrDeviceOpenFailed, err)
	}

	name := filepath.Base(device)
	for _, disk := range blk.Disks {
		if disk.Name == name {
			return nil
		}
		for _, part := range disk.Partitions {
			if part.Name == name {
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s is not a known block device", types.ErrDeviceOpenFailed, device)
}
