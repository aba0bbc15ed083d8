package block

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/n01d-forge/forge-sdk/types"
)

// getPartitions lists the partitions nested under a disk's sysfs entry.
func getPartitions(paths *Paths, diskName string, logger *types.ForgeLogger) types.PartitionList {
	out := make(types.PartitionList, 0)
	path := filepath.Join(paths.SysBlock, diskName)
	logger.Logger.Debug().Str("file", path).Msg("Reading disk file")
	files, err := os.ReadDir(path)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("failed to read disk partitions")
		return out
	}
	for _, file := range files {
		fname := file.Name()
		if !strings.HasPrefix(fname, diskName) {
			continue
		}
		logger.Logger.Debug().Str("file", fname).Msg("Reading partition file")
		partitionPath := filepath.Join(diskName, fname)
		size := partitionSizeBytes(paths, partitionPath, logger)
		mp, pt := partitionInfo(paths, fname, logger)
		du := partUUID(paths, partitionPath, logger)
		if pt == "" {
			pt = partTypeUdev(paths, partitionPath, logger)
		}
		fsLabel := partFSLabel(paths, partitionPath, logger)
		p := &types.Partition{
			Name:            fname,
			SizeBytes:       size,
			MountPoint:      mp,
			UUID:            du,
			FilesystemLabel: fsLabel,
			FS:              pt,
			Path:            filepath.Join("/dev", fname),
			Disk:            filepath.Join("/dev", diskName),
		}
		out = append(out, p)
	}
	return out
}

func partitionSizeBytes(paths *Paths, partitionPath string, logger *types.ForgeLogger) uint64 {
	path := filepath.Join(paths.SysBlock, partitionPath, "size")
	logger.Logger.Trace().Str("file", path).Msg("Reading size file")
	contents, err := os.ReadFile(path)
	if err != nil {
		logger.Logger.Error().Str("file", path).Err(err).Msg("failed to read partition size")
		return 0
	}
	size, err := strconv.ParseUint(strings.TrimSpace(string(contents)), 10, 64)
	if err != nil {
		logger.Logger.Error().Str("contents", string(contents)).Err(err).Msg("failed to parse partition size")
		return 0
	}
	return size * sectorSize
}

// partitionInfo resolves the mountpoint and filesystem type of a partition
// from the mounts table. Both come back empty when the partition is not
// mounted.
func partitionInfo(paths *Paths, part string, logger *types.ForgeLogger) (string, string) {
	// Callers may pass "sda1" or the full "/dev/sda1"
	if !strings.HasPrefix(part, "/dev") {
		part = "/dev/" + part
	}

	var r io.ReadCloser
	logger.Logger.Trace().Str("file", paths.ProcMounts).Msg("Reading mounts file")
	r, err := os.Open(paths.ProcMounts)
	if err != nil {
		logger.Logger.Error().Str("file", paths.ProcMounts).Err(err).Msg("failed to open mounts")
		return "", ""
	}
	defer r.Close()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		entry := parseMountEntry(line, logger)
		if entry == nil || entry.Partition != part {
			continue
		}
		return entry.Mountpoint, entry.FilesystemType
	}
	return "", ""
}

type mountEntry struct {
	Partition      string
	Mountpoint     string
	FilesystemType string
}

func parseMountEntry(line string, logger *types.ForgeLogger) *mountEntry {
	// mount entries for mounted partitions look like this:
	// /dev/sda6 / ext4 rw,relatime,errors=remount-ro,data=ordered 0 0
	if line == "" || line[0] != '/' {
		return nil
	}
	fields := strings.Fields(line)

	if len(fields) < 4 {
		logger.Logger.Trace().Interface("fields", fields).Msg("Mount line has less than 4 fields")
		return nil
	}

	// The mountpoint may contain space, tab and newline characters, encoded
	// into the mount entry line using their octal-to-string representations.
	// From the GNU mtab man pages:
	//
	//   "Therefore these characters are encoded in the files and the getmntent
	//   function takes care of the decoding while reading the entries back in.
	//   '\040' is used to encode a space character, '\011' to encode a tab
	//   character, '\012' to encode a newline character, and '\\' to encode a
	//   backslash."
	mp := fields[1]
	r := strings.NewReplacer(
		"\\011", "\t", "\\012", "\n", "\\040", " ", "\\\\", "\\",
	)
	mp = r.Replace(mp)

	return &mountEntry{
		Partition:      fields[0],
		Mountpoint:     mp,
		FilesystemType: fields[2],
	}
}

func partUUID(paths *Paths, partitionPath string, logger *types.ForgeLogger) string {
	info, err := udevProperties(paths, partitionPath, logger)
	if err != nil {
		logger.Logger.Error().Str("partition", partitionPath).Err(err).Msg("failed to read partition UUID")
		return UNKNOWN
	}

	if uuid, ok := info["ID_PART_ENTRY_UUID"]; ok {
		return uuid
	}
	return UNKNOWN
}

// partTypeUdev gets the filesystem type from the udev database directly, used
// as fallback when the partition is not mounted and the mounts table cannot
// tell us.
func partTypeUdev(paths *Paths, partitionPath string, logger *types.ForgeLogger) string {
	info, err := udevProperties(paths, partitionPath, logger)
	if err != nil {
		logger.Logger.Error().Str("partition", partitionPath).Err(err).Msg("failed to read partition type")
		return UNKNOWN
	}

	if pType, ok := info["ID_FS_TYPE"]; ok {
		return pType
	}
	return UNKNOWN
}

func partFSLabel(paths *Paths, partitionPath string, logger *types.ForgeLogger) string {
	info, err := udevProperties(paths, partitionPath, logger)
	if err != nil {
		logger.Logger.Error().Str("partition", partitionPath).Err(err).Msg("failed to read partition label")
		return UNKNOWN
	}

	if label, ok := info["ID_FS_LABEL"]; ok {
		return label
	}
	return UNKNOWN
}

// udevProperties reads the udev runtime database entry for a sysfs block
// path and returns its E: key/value properties.
func udevProperties(paths *Paths, sysfsPath string, logger *types.ForgeLogger) (map[string]string, error) {
	// Get device major:minor numbers
	devNo, err := os.ReadFile(filepath.Join(paths.SysBlock, sysfsPath, "dev"))
	if err != nil {
		logger.Logger.Error().Err(err).Str("path", filepath.Join(paths.SysBlock, sysfsPath, "dev")).Msg("failed to read device number")
		return nil, err
	}
	return UdevInfo(paths, string(devNo), logger)
}

// UdevInfo returns the udev database properties for a device number.
func UdevInfo(paths *Paths, devNo string, logger *types.ForgeLogger) (map[string]string, error) {
	udevID := "b" + strings.TrimSpace(devNo)
	udevBytes, err := os.ReadFile(filepath.Join(paths.RunUdevData, udevID))
	if err != nil {
		logger.Logger.Trace().Err(err).Str("path", filepath.Join(paths.RunUdevData, udevID)).Msg("no udev info for device")
		return nil, err
	}

	info := make(map[string]string)
	for _, udevLine := range strings.Split(string(udevBytes), "\n") {
		if strings.HasPrefix(udevLine, "E:") {
			if s := strings.SplitN(udevLine[2:], "=", 2); len(s) == 2 {
				info[s[0]] = s[1]
			}
		}
	}
	return info, nil
}
