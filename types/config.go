package types

import "time"

// BurnConfig is the declarative input for one full pipeline run. It is
// immutable for the duration of the run.
type BurnConfig struct {
	ImagePath        string              `yaml:"image_path" json:"image_path"`
	TargetDevice     string              `yaml:"target_device" json:"target_device"`
	VerifyAfterWrite bool                `yaml:"verify_after_write" json:"verify_after_write"`
	EraseBefore      bool                `yaml:"erase_before" json:"erase_before"`
	EraseMethod      string              `yaml:"erase_method,omitempty" json:"erase_method,omitempty"`
	ErasePasses      int                 `yaml:"erase_passes,omitempty" json:"erase_passes,omitempty"`
	Encryption       *EncryptionSettings `yaml:"encryption,omitempty" json:"encryption,omitempty"`
	Bootloader       BootloaderConfig    `yaml:"bootloader" json:"bootloader"`
}

// EncryptionSettings describe how the target should be encrypted after the
// image is written. The password never leaves the process and is not
// serialized back out.
type EncryptionSettings struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Type          string `yaml:"type" json:"type"` // "luks", "luks2" or "veracrypt"
	Password      string `yaml:"password" json:"-"`
	Cipher        string `yaml:"cipher,omitempty" json:"cipher,omitempty"`
	KeySize       uint32 `yaml:"key_size,omitempty" json:"key_size,omitempty"`
	HashAlgorithm string `yaml:"hash_algorithm,omitempty" json:"hash_algorithm,omitempty"`
	Iterations    uint32 `yaml:"iterations,omitempty" json:"iterations,omitempty"`
}

// BootloaderConfig selects the boot mode for the written image.
type BootloaderConfig struct {
	Mode              string `yaml:"mode" json:"mode"` // "uefi", "legacy" or "hybrid"
	SecureBoot        bool   `yaml:"secure_boot" json:"secure_boot"`
	PersistentStorage bool   `yaml:"persistent_storage" json:"persistent_storage"`
	PersistentSizeMB  uint32 `yaml:"persistent_size_mb,omitempty" json:"persistent_size_mb,omitempty"`
}

// DigestResult is the outcome of one hashing invocation. Immutable once
// produced.
type DigestResult struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Hex       string `json:"hex" yaml:"hex"`
	Verified  bool   `json:"verified" yaml:"verified"`
	Expected  string `json:"expected,omitempty" yaml:"expected,omitempty"`
}

// BurnResult is returned by a completed pipeline run.
type BurnResult struct {
	Success          bool          `json:"success" yaml:"success"`
	Message          string        `json:"message" yaml:"message"`
	HashVerification *DigestResult `json:"hash_verification,omitempty" yaml:"hash_verification,omitempty"`
	Duration         time.Duration `json:"duration" yaml:"duration"`
	BytesWritten     uint64        `json:"bytes_written" yaml:"bytes_written"`
}

// ProgressSnapshot is what pollers see while a pipeline runs. Readers may
// observe a slightly stale value but never a torn one.
type ProgressSnapshot struct {
	Stage      string  `json:"stage" yaml:"stage"`
	Percent    float64 `json:"percent" yaml:"percent"`
	BytesDone  uint64  `json:"bytes_done" yaml:"bytes_done"`
	TotalBytes uint64  `json:"total_bytes" yaml:"total_bytes"`
}
