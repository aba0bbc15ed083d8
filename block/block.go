// Package block enumerates drives and partitions straight from sysfs and the
// udev runtime database, without shelling out to lsblk or udevadm.
package block

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/n01d-forge/forge-sdk/types"
)

const (
	sectorSize = 512
	UNKNOWN    = "unknown"
)

// Paths holds the kernel interface locations the scanner reads. Tests and
// chrooted environments point them elsewhere.
type Paths struct {
	SysBlock    string
	RunUdevData string
	ProcMounts  string
}

func NewPaths(withOptionalPrefix string) *Paths {
	p := &Paths{
		SysBlock:    "/sys/block/",
		RunUdevData: "/run/udev/data",
		ProcMounts:  "/proc/mounts",
	}

	// The env var has precedence over anything
	val, exists := os.LookupEnv("FORGE_CHROOT")
	if exists {
		val = strings.TrimSuffix(val, "/")
		p.SysBlock = fmt.Sprintf("%s%s", val, p.SysBlock)
		p.RunUdevData = fmt.Sprintf("%s%s", val, p.RunUdevData)
		p.ProcMounts = fmt.Sprintf("%s%s", val, p.ProcMounts)
		return p
	}

	if withOptionalPrefix != "" {
		withOptionalPrefix = strings.TrimSuffix(withOptionalPrefix, "/")
		p.SysBlock = fmt.Sprintf("%s%s", withOptionalPrefix, p.SysBlock)
		p.RunUdevData = fmt.Sprintf("%s%s", withOptionalPrefix, p.RunUdevData)
		p.ProcMounts = fmt.Sprintf("%s%s", withOptionalPrefix, p.ProcMounts)
	}
	return p
}

// GetDrives scans the block layer and returns every drive with its
// partitions. Unused loop devices are skipped so the list matches what a
// user would consider a drive.
func GetDrives(paths *Paths, logger *types.ForgeLogger) []*types.DriveInfo {
	if logger == nil {
		newLogger := types.NewNullLogger()
		logger = &newLogger
	}
	drives := make([]*types.DriveInfo, 0)
	logger.Logger.Debug().Str("path", paths.SysBlock).Msg("Scanning for drives")
	files, err := os.ReadDir(paths.SysBlock)
	if err != nil {
		return nil
	}
	for _, file := range files {
		dname := file.Name()
		logger.Logger.Debug().Str("file", dname).Msg("Reading block entry")
		size := diskSizeBytes(paths, dname, logger)

		if strings.HasPrefix(dname, "loop") && size == 0 {
			// We don't care about unused loop devices...
			continue
		}

		props, err := udevProperties(paths, dname, logger)
		if err != nil {
			props = map[string]string{}
		}

		d := &types.DriveInfo{
			Device:    filepath.Join("/dev", dname),
			SizeBytes: size,
			Model:     udevValue(props, "ID_MODEL"),
			Vendor:    udevValue(props, "ID_VENDOR"),
			Serial:    udevValue(props, "ID_SERIAL_SHORT"),
			USB:       props["ID_BUS"] == "usb",
			Removable: isRemovable(paths, dname, logger),
			UUID:      diskUUID(props),
		}
		d.DisplayName = displayName(d)
		d.Partitions = getPartitions(paths, dname, logger)
		for _, part := range d.Partitions {
			if part.MountPoint != "" {
				d.MountPoints = append(d.MountPoints, part.MountPoint)
			}
		}

		drives = append(drives, d)
	}

	return drives
}

// FindDrive resolves a device path like /dev/sdb to its scanned DriveInfo.
func FindDrive(paths *Paths, device string, logger *types.ForgeLogger) (*types.DriveInfo, error) {
	for _, d := range GetDrives(paths, logger) {
		if d.Device == device {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s not found in block scan", types.ErrDeviceOpenFailed, device)
}

func displayName(d *types.DriveInfo) string {
	parts := make([]string, 0, 2)
	if d.Vendor != "" && d.Vendor != UNKNOWN {
		parts = append(parts, d.Vendor)
	}
	if d.Model != "" && d.Model != UNKNOWN {
		parts = append(parts, d.Model)
	}
	if len(parts) == 0 {
		return d.Device
	}
	return strings.Join(parts, " ")
}

func diskSizeBytes(paths *Paths, disk string, logger *types.ForgeLogger) uint64 {
	// The number of 512-byte sectors lives in /sys/block/$DEVICE/size.
	path := filepath.Join(paths.SysBlock, disk, "size")
	logger.Logger.Debug().Str("path", path).Msg("Reading disk size")
	contents, err := os.ReadFile(path)
	if err != nil {
		logger.Logger.Error().Str("path", path).Err(err).Msg("Failed to read file")
		return 0
	}
	size, err := strconv.ParseUint(strings.TrimSpace(string(contents)), 10, 64)
	if err != nil {
		logger.Logger.Error().Str("path", path).Err(err).Str("content", string(contents)).Msg("Failed to parse size")
		return 0
	}
	logger.Logger.Trace().Uint64("size", size*sectorSize).Msg("Got disk size")
	return size * sectorSize
}

// isRemovable reads the kernel's removable flag for the device. Missing file
// means not removable.
func isRemovable(paths *Paths, disk string, logger *types.ForgeLogger) bool {
	path := filepath.Join(paths.SysBlock, disk, "removable")
	contents, err := os.ReadFile(path)
	if err != nil {
		logger.Logger.Trace().Str("path", path).Err(err).Msg("No removable flag")
		return false
	}
	return strings.TrimSpace(string(contents)) == "1"
}

// udevValue decodes a udev property, mapping the escaped space marker back
// and treating absence as empty.
func udevValue(props map[string]string, key string) string {
	return strings.ReplaceAll(props[key], "\\x20", " ")
}

func diskUUID(props map[string]string) string {
	if uuid, ok := props["ID_PART_TABLE_UUID"]; ok {
		return uuid
	}
	return UNKNOWN
}
