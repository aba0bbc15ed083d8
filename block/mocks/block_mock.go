// Package mocks constructs a fake block layer for the scanner to read.
// The scanner works off /sys/block, /run/udev/data and /proc/mounts, and the
// FORGE_CHROOT env var relocates all three, so the mock builds those files
// under a temp dir and points the env var at it. Pass no drives to simulate a
// system without disks.
package mocks

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/n01d-forge/forge-sdk/block"
)

// Drive describes one fake drive to materialize.
type Drive struct {
	Name        string
	SizeSectors uint64
	UUID        string
	Removable   bool
	Model       string
	Vendor      string
	Serial      string
	Bus         string // "usb", "ata", ...
	Partitions  []Partition
}

// Partition describes one fake partition under a drive.
type Partition struct {
	Name        string
	SizeSectors uint64
	FS          string
	Label       string
	UUID        string
	MountPoint  string
}

type BlockMock struct {
	Chroot string
	paths  *block.Paths
	drives []Drive
	mounts []string
}

func (m *BlockMock) AddDrive(d Drive) {
	m.drives = append(m.drives, d)
}

// CreateDevices materializes the fake sysfs/udev/mounts tree and points
// FORGE_CHROOT at it so the next NewPaths picks it up.
func (m *BlockMock) CreateDevices() {
	d, _ := os.MkdirTemp("", "blockmock")
	m.Chroot = d
	m.paths = block.NewPaths(d)
	_ = os.Setenv("FORGE_CHROOT", d)
	_ = os.MkdirAll(m.paths.SysBlock, 0755)
	_ = os.MkdirAll(m.paths.RunUdevData, 0755)
	procDir, _ := filepath.Split(m.paths.ProcMounts)
	_ = os.MkdirAll(procDir, 0755)

	for indexDrive, drive := range m.drives {
		drivePath := filepath.Join(m.paths.SysBlock, drive.Name)
		_ = os.Mkdir(drivePath, 0755)
		// The dev file carries the major:minor pair the udev lookup keys on
		_ = os.WriteFile(filepath.Join(drivePath, "dev"), []byte(fmt.Sprintf("%d:0\n", indexDrive)), 0644)
		_ = os.WriteFile(filepath.Join(drivePath, "size"), []byte(strconv.FormatUint(drive.SizeSectors, 10)), 0644)

		removable := "0"
		if drive.Removable {
			removable = "1"
		}
		_ = os.WriteFile(filepath.Join(drivePath, "removable"), []byte(removable+"\n"), 0644)

		var udevData []string
		if drive.UUID != "" {
			udevData = append(udevData, fmt.Sprintf("E:ID_PART_TABLE_UUID=%s\n", drive.UUID))
		}
		if drive.Model != "" {
			udevData = append(udevData, fmt.Sprintf("E:ID_MODEL=%s\n", drive.Model))
		}
		if drive.Vendor != "" {
			udevData = append(udevData, fmt.Sprintf("E:ID_VENDOR=%s\n", drive.Vendor))
		}
		if drive.Serial != "" {
			udevData = append(udevData, fmt.Sprintf("E:ID_SERIAL_SHORT=%s\n", drive.Serial))
		}
		if drive.Bus != "" {
			udevData = append(udevData, fmt.Sprintf("E:ID_BUS=%s\n", drive.Bus))
		}
		_ = os.WriteFile(filepath.Join(m.paths.RunUdevData, fmt.Sprintf("b%d:0", indexDrive)), []byte(strings.Join(udevData, "")), 0644)

		for indexPart, partition := range drive.Partitions {
			_ = os.Mkdir(filepath.Join(drivePath, partition.Name), 0755)
			_ = os.WriteFile(filepath.Join(drivePath, partition.Name, "dev"), []byte(fmt.Sprintf("%d:6%d\n", indexDrive, indexPart)), 0644)
			_ = os.WriteFile(filepath.Join(drivePath, partition.Name, "size"), []byte(fmt.Sprintf("%d\n", partition.SizeSectors)), 0644)

			data := []string{fmt.Sprintf("E:ID_FS_LABEL=%s\n", partition.Label)}
			if partition.FS != "" {
				data = append(data, fmt.Sprintf("E:ID_FS_TYPE=%s\n", partition.FS))
			}
			if partition.UUID != "" {
				data = append(data, fmt.Sprintf("E:ID_PART_ENTRY_UUID=%s\n", partition.UUID))
			}
			_ = os.WriteFile(filepath.Join(m.paths.RunUdevData, fmt.Sprintf("b%d:6%d", indexDrive, indexPart)), []byte(strings.Join(data, "")), 0644)

			if partition.MountPoint != "" {
				fs := partition.FS
				if fs == "" {
					fs = "ext4"
				}
				m.mounts = append(
					m.mounts,
					fmt.Sprintf("%s %s %s ro,relatime 0 0\n", filepath.Join("/dev", partition.Name), partition.MountPoint, fs))
			}
		}
	}

	_ = os.WriteFile(m.paths.ProcMounts, []byte(strings.Join(m.mounts, "")), 0644)
}

// Paths returns the scanner paths rooted in the mock chroot.
func (m *BlockMock) Paths() *block.Paths {
	return m.paths
}

// Clean tears the fake tree down and unsets the env override.
func (m *BlockMock) Clean() {
	_ = os.Unsetenv("FORGE_CHROOT")
	_ = os.RemoveAll(m.Chroot)
}
