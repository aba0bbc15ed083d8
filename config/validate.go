package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/n01d-forge/forge-sdk/erase"
	"github.com/n01d-forge/forge-sdk/types"
)

// BurnConfig decodes the merged profile into the typed pipeline config and
// validates it. Invalid profiles never reach the pipeline.
func (c Profile) BurnConfig() (*types.BurnConfig, error) {
	data, err := yaml.Marshal(c.Values)
	if err != nil {
		return nil, fmt.Errorf("%w: marshalling profile: %v", types.ErrRejectedInput, err)
	}

	var cfg types.BurnConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: decoding profile: %v", types.ErrRejectedInput, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks a pipeline config before any device is touched.
func Validate(cfg types.BurnConfig) error {
	if cfg.ImagePath == "" {
		return fmt.Errorf("%w: image_path is required", types.ErrRejectedInput)
	}
	if cfg.TargetDevice == "" {
		return fmt.Errorf("%w: target_device is required", types.ErrRejectedInput)
	}

	if cfg.EraseBefore {
		if _, err := erase.ParseMethod(cfg.EraseMethod, cfg.ErasePasses); err != nil {
			return err
		}
	}

	switch cfg.Bootloader.Mode {
	case "", "uefi", "legacy", "hybrid":
	default:
		return fmt.Errorf("%w: unknown bootloader mode %q", types.ErrRejectedInput, cfg.Bootloader.Mode)
	}

	if cfg.Encryption != nil && cfg.Encryption.Enabled {
		switch cfg.Encryption.Type {
		case "luks", "luks2", "veracrypt":
		default:
			return fmt.Errorf("%w: unknown encryption type %q", types.ErrRejectedInput, cfg.Encryption.Type)
		}
		if cfg.Encryption.Password == "" {
			return fmt.Errorf("%w: encryption enabled without a password", types.ErrRejectedInput)
		}
	}

	return nil
}
