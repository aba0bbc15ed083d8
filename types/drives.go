package types

import "fmt"

// Partition is one partition on a drive as reported by the block scanner.
type Partition struct {
	Name            string `yaml:"name,omitempty" json:"name,omitempty"`
	FilesystemLabel string `yaml:"label,omitempty" json:"label,omitempty"`
	SizeBytes       uint64 `yaml:"size_bytes,omitempty" json:"size_bytes,omitempty"`
	FS              string `yaml:"fs,omitempty" json:"fs,omitempty"`
	UUID            string `yaml:"uuid,omitempty" json:"uuid,omitempty"`
	MountPoint      string `yaml:"-" json:"-"` // MountPoint is not serialized
	Path            string `yaml:"-" json:"-"` // Path is not serialized
	Disk            string `yaml:"-" json:"-"` // Disk is not serialized
}

type PartitionList []*Partition

// DriveInfo describes one physical drive. The burner treats it as read-only
// lookup input to resolve a selected drive into a device path.
type DriveInfo struct {
	Device      string        `json:"device" yaml:"device"`
	DisplayName string        `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	SizeBytes   uint64        `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
	Model       string        `json:"model,omitempty" yaml:"model,omitempty"`
	Vendor      string        `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Serial      string        `json:"serial,omitempty" yaml:"serial,omitempty"`
	Removable   bool          `json:"removable" yaml:"removable"`
	USB         bool          `json:"usb" yaml:"usb"`
	UUID        string        `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	MountPoints []string      `json:"mount_points,omitempty" yaml:"mount_points,omitempty"`
	Partitions  PartitionList `json:"partitions,omitempty" yaml:"partitions,omitempty"`
}

// SizeHuman renders the drive size for display.
func (d DriveInfo) SizeHuman() string {
	size := float64(d.SizeBytes)
	for _, unit := range []string{"B", "KiB", "MiB", "GiB", "TiB"} {
		if size < 1024 || unit == "TiB" {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%d B", d.SizeBytes)
}
