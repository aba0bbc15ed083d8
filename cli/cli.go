// Package cli wires the pipeline into urfave/cli commands for the forge
// binary.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/n01d-forge/forge-sdk/block"
	"github.com/n01d-forge/forge-sdk/burner"
	"github.com/n01d-forge/forge-sdk/config"
	"github.com/n01d-forge/forge-sdk/digest"
	"github.com/n01d-forge/forge-sdk/erase"
	"github.com/n01d-forge/forge-sdk/image"
	"github.com/n01d-forge/forge-sdk/state"
	"github.com/n01d-forge/forge-sdk/types"
)

var (
	imageFlag = &cli.StringFlag{
		Name:  "image",
		Usage: "path to the source image",
	}

	deviceFlag = &cli.StringFlag{
		Name:  "device",
		Usage: "target block device (e.g. /dev/sdb)",
	}

	verifyFlag = &cli.BoolFlag{
		Name:  "verify",
		Usage: "hash the device after writing and compare with the source",
	}

	eraseBeforeFlag = &cli.BoolFlag{
		Name:  "erase",
		Usage: "securely erase the device before writing",
	}

	methodFlag = &cli.StringFlag{
		Name:  "method",
		Value: "zeros",
		Usage: "erase method (zeros, random, dod, gutmann, custom)",
	}

	passesFlag = &cli.IntFlag{
		Name:  "passes",
		Usage: "pass count for the custom erase method",
	}

	algorithmFlag = &cli.StringFlag{
		Name:  "algorithm",
		Value: "sha256",
		Usage: "hash algorithm (sha256, sha512, md5)",
	}

	expectedFlag = &cli.StringFlag{
		Name:  "expected",
		Usage: "expected hex digest to compare against",
	}

	profileDirFlag = &cli.StringSliceFlag{
		Name:  "profile-dir",
		Usage: "directories to scan for burn profiles",
	}

	bootModeFlag = &cli.StringFlag{
		Name:  "boot-mode",
		Value: "uefi",
		Usage: "bootloader mode (uefi, legacy, hybrid)",
	}

	encryptFlag = &cli.StringFlag{
		Name:  "encrypt",
		Usage: "encrypt the device after writing (luks2)",
	}

	passwordFlag = &cli.StringFlag{
		Name:    "password",
		Usage:   "encryption passphrase",
		EnvVars: []string{"FORGE_PASSWORD"},
	}

	yesFlag = &cli.BoolFlag{
		Name:  "yes",
		Usage: "skip the confirmation prompt",
	}

	jsonFlag = &cli.BoolFlag{
		Name:  "json",
		Usage: "print machine-readable output",
	}
)

func CliCommands(logger types.ForgeLogger) []*cli.Command {
	return []*cli.Command{
		burnCommand(logger),
		eraseCommand(logger),
		hashCommand(),
		verifyCommand(),
		drivesCommand(logger),
		inspectCommand(logger),
		queryCommand(logger),
	}
}

func burnCommand(logger types.ForgeLogger) *cli.Command {
	return &cli.Command{
		Name:  "burn",
		Usage: "write an image to a device, with optional erase, encryption and verification",
		Flags: []cli.Flag{
			imageFlag, deviceFlag, verifyFlag, eraseBeforeFlag, methodFlag, passesFlag,
			encryptFlag, passwordFlag, bootModeFlag, profileDirFlag, yesFlag,
		},
		Action: func(cCtx *cli.Context) error {
			cfg, err := buildBurnConfig(cCtx)
			if err != nil {
				return err
			}
			if err := config.Validate(*cfg); err != nil {
				return err
			}
			if !cCtx.Bool(yesFlag.Name) {
				ok, _ := pterm.DefaultInteractiveConfirm.
					WithDefaultText(fmt.Sprintf("This will overwrite %s. Continue?", cfg.TargetDevice)).
					Show()
				if !ok {
					return nil
				}
			}

			b := burner.New(logger)
			result, err := runWithProgress(b, *cfg)
			if err != nil {
				return err
			}

			if result.HashVerification != nil && !result.HashVerification.Verified {
				pterm.Warning.Printfln("hash mismatch: expected %s, device reads %s",
					result.HashVerification.Expected, result.HashVerification.Hex)
			}
			pterm.Success.Printfln("%s (%d bytes in %s)", result.Message, result.BytesWritten, result.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

// buildBurnConfig merges profile files with the command line flags, flags
// winning.
func buildBurnConfig(cCtx *cli.Context) (*types.BurnConfig, error) {
	cfg := &types.BurnConfig{}

	if dirs := cCtx.StringSlice(profileDirFlag.Name); len(dirs) > 0 {
		profile, err := config.Scan(&config.Options{ScanDir: dirs, NoLogs: true})
		if err != nil {
			return nil, err
		}
		cfg, err = profile.BurnConfig()
		if err != nil {
			return nil, err
		}
	}

	if v := cCtx.String(imageFlag.Name); v != "" {
		cfg.ImagePath = v
	}
	if v := cCtx.String(deviceFlag.Name); v != "" {
		cfg.TargetDevice = v
	}
	if cCtx.IsSet(verifyFlag.Name) {
		cfg.VerifyAfterWrite = cCtx.Bool(verifyFlag.Name)
	}
	if cCtx.IsSet(eraseBeforeFlag.Name) {
		cfg.EraseBefore = cCtx.Bool(eraseBeforeFlag.Name)
		cfg.EraseMethod = cCtx.String(methodFlag.Name)
		cfg.ErasePasses = cCtx.Int(passesFlag.Name)
	}
	if v := cCtx.String(encryptFlag.Name); v != "" {
		cfg.Encryption = &types.EncryptionSettings{
			Enabled:  true,
			Type:     v,
			Password: cCtx.String(passwordFlag.Name),
		}
	}
	if cfg.Bootloader.Mode == "" || cCtx.IsSet(bootModeFlag.Name) {
		cfg.Bootloader.Mode = cCtx.String(bootModeFlag.Name)
	}

	return cfg, nil
}

func eraseCommand(logger types.ForgeLogger) *cli.Command {
	return &cli.Command{
		Name:  "erase",
		Usage: "securely erase a whole device",
		Flags: []cli.Flag{deviceFlag, methodFlag, passesFlag, yesFlag},
		Action: func(cCtx *cli.Context) error {
			device := cCtx.String(deviceFlag.Name)
			if device == "" {
				return fmt.Errorf("%w: --device is required", types.ErrRejectedInput)
			}
			method, err := erase.ParseMethod(cCtx.String(methodFlag.Name), cCtx.Int(passesFlag.Name))
			if err != nil {
				return err
			}
			if !cCtx.Bool(yesFlag.Name) {
				ok, _ := pterm.DefaultInteractiveConfirm.
					WithDefaultText(fmt.Sprintf("This will destroy all data on %s. Continue?", device)).
					Show()
				if !ok {
					return nil
				}
			}

			b := burner.New(logger)
			if err := watchProgress(b.State, func() error { return b.Erase(device, method) }); err != nil {
				return err
			}
			pterm.Success.Printfln("erased %s with %s", device, method.String())
			return nil
		},
	}
}

func hashCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash",
		Usage:     "compute the digest of an image or device",
		ArgsUsage: "<path>",
		Flags:     []cli.Flag{algorithmFlag},
		Action: func(cCtx *cli.Context) error {
			if cCtx.NArg() != 1 {
				return fmt.Errorf("%w: exactly one path is required", types.ErrRejectedInput)
			}
			res, err := digest.File(cCtx.Args().First(), cCtx.String(algorithmFlag.Name), nil)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s\n", res.Hex, cCtx.Args().First())
			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "compare a file digest against an expected value",
		ArgsUsage: "<path>",
		Flags:     []cli.Flag{algorithmFlag, expectedFlag},
		Action: func(cCtx *cli.Context) error {
			if cCtx.NArg() != 1 {
				return fmt.Errorf("%w: exactly one path is required", types.ErrRejectedInput)
			}
			expected := cCtx.String(expectedFlag.Name)
			if expected == "" {
				return fmt.Errorf("%w: --expected is required", types.ErrRejectedInput)
			}
			res, err := digest.Verify(cCtx.Args().First(), expected, cCtx.String(algorithmFlag.Name), nil)
			if err != nil {
				return err
			}
			if !res.Verified {
				return fmt.Errorf("digest mismatch: expected %s, got %s", res.Expected, res.Hex)
			}
			pterm.Success.Println("digest matches")
			return nil
		},
	}
}

func drivesCommand(logger types.ForgeLogger) *cli.Command {
	return &cli.Command{
		Name:  "drives",
		Usage: "list the drives on this system",
		Flags: []cli.Flag{jsonFlag},
		Action: func(cCtx *cli.Context) error {
			drives := block.GetDrives(block.NewPaths(""), &logger)

			if cCtx.Bool(jsonFlag.Name) {
				out, err := json.MarshalIndent(drives, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			rows := pterm.TableData{{"Device", "Name", "Size", "Removable", "USB", "Serial"}}
			for _, d := range drives {
				rows = append(rows, []string{
					d.Device, d.DisplayName, d.SizeHuman(),
					fmt.Sprintf("%t", d.Removable), fmt.Sprintf("%t", d.USB), d.Serial,
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
		},
	}
}

func inspectCommand(logger types.ForgeLogger) *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "show what is known about a source image",
		ArgsUsage: "<path>",
		Flags:     []cli.Flag{jsonFlag},
		Action: func(cCtx *cli.Context) error {
			if cCtx.NArg() != 1 {
				return fmt.Errorf("%w: exactly one path is required", types.ErrRejectedInput)
			}
			info, err := image.Inspect(cCtx.Args().First(), logger)
			if err != nil {
				return err
			}
			if cCtx.Bool(jsonFlag.Name) {
				out, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}
			fmt.Printf("path:       %s\n", info.Path)
			fmt.Printf("format:     %s\n", info.Format)
			fmt.Printf("size:       %d\n", info.SizeBytes)
			if info.Filesystem != "" {
				fmt.Printf("filesystem: %s\n", info.Filesystem)
			}
			return nil
		},
	}
}

func queryCommand(logger types.ForgeLogger) *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "query the runtime state with a jq-style selector",
		ArgsUsage: "<selector>",
		Action: func(cCtx *cli.Context) error {
			if cCtx.NArg() != 1 {
				return fmt.Errorf("%w: exactly one selector is required", types.ErrRejectedInput)
			}
			observer := state.Observer{Paths: block.NewPaths(""), Logger: &logger}
			res, err := observer.Observe().Query(cCtx.Args().First())
			if err != nil {
				return err
			}
			fmt.Println(res)
			return nil
		},
	}
}

// runWithProgress executes the pipeline in the background while rendering a
// progress bar from its state, cancelling on SIGINT/SIGTERM.
func runWithProgress(b *burner.Burner, cfg types.BurnConfig) (*types.BurnResult, error) {
	var result *types.BurnResult
	err := watchProgress(b.State, func() error {
		var runErr error
		result, runErr = b.Run(cfg)
		return runErr
	})
	return result, err
}

// watchProgress runs fn in the background and polls the state into a
// progress bar until it returns.
func watchProgress(st *burner.OperationState, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	bar, _ := pterm.DefaultProgressbar.WithTotal(100).WithTitle("starting").Start()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err == nil {
				bar.Add(bar.Total - bar.Current)
			}
			_, _ = bar.Stop()
			return err
		case <-signals:
			st.Cancel()
		case <-ticker.C:
			snap := st.Progress()
			bar.UpdateTitle(snap.Stage)
			bar.Add(int(snap.Percent) - bar.Current)
		}
	}
}
