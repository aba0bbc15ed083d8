// Package image inspects source disk images and extracts single files from
// ISO images, e.g. bootloader assets needed during device setup.
package image

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/filesystem"

	"github.com/n01d-forge/forge-sdk/types"
)

// Info describes a source image before it is burned.
type Info struct {
	Path       string `json:"path" yaml:"path"`
	SizeBytes  uint64 `json:"size_bytes" yaml:"size_bytes"`
	Format     string `json:"format" yaml:"format"`
	Filesystem string `json:"filesystem,omitempty" yaml:"filesystem,omitempty"`
}

// formatByExtension maps file extensions to the image formats we recognize.
// Unknown extensions fall back to "raw" since any file can be written as-is.
var formatByExtension = map[string]string{
	".iso":   "iso",
	".img":   "raw",
	".raw":   "raw",
	".dmg":   "dmg",
	".vhd":   "vhd",
	".vhdx":  "vhdx",
	".vmdk":  "vmdk",
	".qcow2": "qcow2",
}

// Inspect stats the image and classifies it. The filesystem label comes from
// probing the image content and stays empty when nothing recognizable is
// found; classification never fails on unprobeable content.
func Inspect(path string, logger types.ForgeLogger) (*Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrSourceNotFound, path, err)
	}

	format, ok := formatByExtension[strings.ToLower(filepath.Ext(path))]
	if !ok {
		format = "raw"
	}

	info := &Info{
		Path:      path,
		SizeBytes: uint64(stat.Size()),
		Format:    format,
	}

	if disk, err := diskfs.Open(path); err == nil {
		if fs, err := disk.GetFilesystem(0); err == nil {
			info.Filesystem = filesystemName(fs.Type())
		}
	}

	logger.Logger.Debug().
		Str("path", path).
		Str("format", info.Format).
		Str("filesystem", info.Filesystem).
		Uint64("size", info.SizeBytes).
		Msg("Inspected image")
	return info, nil
}

// ExtractFromISO copies a single file out of an ISO image to the destination
// path. The file path inside the ISO must be absolute.
func ExtractFromISO(file, iso, destination string, logger types.ForgeLogger) error {
	log := logger.Logger.With().Str("file", file).Str("iso", iso).Str("destination", destination).Logger()

	if _, err := os.Stat(iso); err != nil {
		log.Error().Err(err).Msg("checking iso file")
		return fmt.Errorf("%w: %s: %v", types.ErrSourceNotFound, iso, err)
	}
	if !isFullPath(file) {
		log.Error().Msg("file to extract is not a full path")
		return fmt.Errorf("%w: %s is not a full path", types.ErrRejectedInput, file)
	}

	log.Debug().Msg("Extracting file from iso")
	open, err := diskfs.Open(iso)
	if err != nil {
		log.Error().Err(err).Msg("opening iso file")
		return fmt.Errorf("%w: opening iso: %v", types.ErrIoFailure, err)
	}
	fs, err := open.GetFilesystem(0)
	if err != nil {
		log.Error().Err(err).Msg("getting filesystem")
		return fmt.Errorf("%w: reading iso filesystem: %v", types.ErrIoFailure, err)
	}
	isoFile, err := fs.OpenFile(file, os.O_RDONLY)
	if err != nil {
		log.Error().Err(err).Msg("opening file inside iso")
		return fmt.Errorf("%w: %s not found in iso: %v", types.ErrSourceNotFound, file, err)
	}
	defer isoFile.Close()

	destFile, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		log.Error().Err(err).Msg("creating destination file")
		return fmt.Errorf("%w: creating %s: %v", types.ErrIoFailure, destination, err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, isoFile); err != nil {
		log.Error().Err(err).Msg("copying file to destination")
		return fmt.Errorf("%w: copying from iso: %v", types.ErrIoFailure, err)
	}
	log.Debug().Msg("File extracted from iso")
	return nil
}

func filesystemName(t filesystem.Type) string {
	switch t {
	case filesystem.TypeISO9660:
		return "iso9660"
	case filesystem.TypeFat32:
		return "fat32"
	case filesystem.TypeSquashfs:
		return "squashfs"
	case filesystem.TypeExt4:
		return "ext4"
	default:
		return ""
	}
}

// isFullPath checks a given path to see if it is absolute, refuses relative
// segments and the bare root dir.
func isFullPath(path string) bool {
	if path == "" {
		return false
	}
	if !strings.HasPrefix(path, "/") {
		return false
	}
	cleaned := filepath.Clean(path)
	if !filepath.IsAbs(cleaned) {
		return false
	}
	if cleaned == "/" {
		return false
	}
	return len(strings.Split(cleaned, "/")) > 1
}
