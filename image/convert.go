package image

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/uuid"

	"github.com/n01d-forge/forge-sdk/constants"
	"github.com/n01d-forge/forge-sdk/types"
)

// RawToVHD converts a raw disk image to a fixed VHD compatible with Azure.
// All VHDs on Azure must have a virtual size aligned to 1 MB; the dynamic
// VHDX format is not supported there, only fixed VHD.
func RawToVHD(source string, logger types.ForgeLogger) error {
	logger.Logger.Info().Str("source", source).Msg("Converting raw disk to Azure VHD")
	err := os.Rename(source, fmt.Sprintf("%s.vhd", source))
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error renaming raw image to vhd")
		return err
	}
	vhdFile, err := os.OpenFile(fmt.Sprintf("%s.vhd", source), os.O_APPEND|os.O_WRONLY, constants.FilePerm)
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error opening vhd file")
		return err
	}
	info, err := vhdFile.Stat()
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error getting file info")
		return err
	}
	actualSize := info.Size()
	// Round the virtual size up to the next MB, minus the 512 byte footer we
	// append afterwards
	finalSizeBytes := (actualSize + constants.MB - 1) / constants.MB * constants.MB
	finalSizeBytes -= 512
	// For smaller than 1 MB images, this calculation doesn't work, so we round up to 1 MB
	if finalSizeBytes <= 0 {
		finalSizeBytes = constants.MB - 512
	}
	if actualSize != finalSizeBytes {
		logger.Logger.Info().Int64("actualSize", actualSize).Int64("finalSize", finalSizeBytes).Msg("Resizing image")
		// If you do not seek, you will override the data
		_, err = vhdFile.Seek(0, io.SeekEnd)
		if err != nil {
			logger.Logger.Error().Err(err).Str("source", source).Msg("Error seeking to end")
			return err
		}
		err = vhdFile.Truncate(finalSizeBytes)
		if err != nil {
			logger.Logger.Error().Err(err).Str("source", source).Msg("Error truncating file")
			return err
		}
	}
	info, err = vhdFile.Stat() // Stat again to get the new size
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error getting file info")
		return err
	}
	footer, err := newVHDFixedFooter(uint64(info.Size()))
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error building footer")
		return err
	}
	if _, err := vhdFile.Write(footer); err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error writing footer")
		return err
	}
	if err := vhdFile.Close(); err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error closing file")
		return err
	}
	return nil
}

// RawToGCE transforms an image from RAW format into GCE format: padded to a
// whole GB and packed as a gzip-compressed GNU tar holding the disk.
func RawToGCE(source string, logger types.ForgeLogger) error {
	logger.Logger.Info().Msg("Transforming raw image into gce format")
	img, err := os.OpenFile(source, os.O_APPEND|os.O_WRONLY, constants.FilePerm)
	if err != nil {
		logger.Logger.Error().Err(err).Str("file", source).Msg("Error opening file")
		return err
	}
	info, err := img.Stat()
	if err != nil {
		logger.Logger.Error().Err(err).Str("file", source).Msg("Error getting file info")
		return err
	}
	actualSize := info.Size()
	finalSizeBytes := (actualSize/constants.GB + 1) * constants.GB
	logger.Logger.Info().Int64("current", actualSize).Int64("final", finalSizeBytes).Str("file", source).Msg("Resizing image")
	// REMEMBER TO SEEK!
	if _, err = img.Seek(0, io.SeekEnd); err != nil {
		logger.Logger.Error().Err(err).Str("file", source).Msg("Error seeking to end")
		return err
	}
	if err = img.Truncate(finalSizeBytes); err != nil {
		logger.Logger.Error().Err(err).Str("file", source).Msg("Error truncating file")
		return err
	}
	if err = img.Close(); err != nil {
		logger.Logger.Error().Err(err).Str("file", source).Msg("Error closing file")
		return err
	}

	// Tar gz the image
	file, err := os.Create(fmt.Sprintf("%s.tar.gz", source))
	if err != nil {
		logger.Logger.Error().Err(err).Str("destination", fmt.Sprintf("%s.tar.gz", source)).Msg("Error creating destination file")
		return err
	}
	defer file.Close()
	logger.Logger.Info().Str("destination", file.Name()).Msg("Compressing raw image into a tar.gz")

	gzipWriter, err := gzip.NewWriterLevel(file, gzip.BestSpeed)
	if err != nil {
		return err
	}
	defer gzipWriter.Close()
	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	sourceFile, err := os.Open(source)
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error opening source file")
		return err
	}
	defer sourceFile.Close()
	sourceStat, err := sourceFile.Stat()
	if err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error getting source info")
		return err
	}

	header := &tar.Header{
		Name:   sourceStat.Name(),
		Size:   sourceStat.Size(),
		Mode:   int64(sourceStat.Mode()),
		Format: tar.FormatGNU,
	}
	if err = tarWriter.WriteHeader(header); err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error writing header")
		return err
	}
	if _, err = io.Copy(tarWriter, sourceFile); err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error copying data")
		return err
	}
	// Remove the full raw image, we already got the compressed one
	if err = os.Remove(source); err != nil {
		logger.Logger.Error().Err(err).Str("source", source).Msg("Error removing full raw image")
		return err
	}
	return nil
}

// vhdEpoch is the VHD timestamp origin, seconds since January 1, 2000 UTC.
var vhdEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// newVHDFixedFooter builds the 512-byte footer that turns a raw file of the
// given size into a fixed VHD.
func newVHDFixedFooter(size uint64) ([]byte, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	buf.WriteString("conectix")                                     // cookie
	binary.Write(buf, binary.BigEndian, uint32(2))                  // features: reserved bit
	binary.Write(buf, binary.BigEndian, uint32(0x00010000))         // file format version 1.0
	binary.Write(buf, binary.BigEndian, uint64(0xFFFFFFFFFFFFFFFF)) // data offset, fixed disks have none
	binary.Write(buf, binary.BigEndian, uint32(time.Since(vhdEpoch).Seconds()))
	buf.WriteString("forg")                                 // creator application
	binary.Write(buf, binary.BigEndian, uint32(0x00010000)) // creator version
	buf.WriteString("Lnux")                                 // creator host OS
	binary.Write(buf, binary.BigEndian, size)               // original size
	binary.Write(buf, binary.BigEndian, size)               // current size
	binary.Write(buf, binary.BigEndian, vhdGeometry(size/512))
	binary.Write(buf, binary.BigEndian, uint32(2)) // disk type: fixed
	binary.Write(buf, binary.BigEndian, uint32(0)) // checksum placeholder
	buf.Write(id.Bytes())
	buf.WriteByte(0) // saved state
	buf.Write(make([]byte, 427))

	footer := buf.Bytes()
	var sum uint32
	for _, b := range footer {
		sum += uint32(b)
	}
	binary.BigEndian.PutUint32(footer[64:68], ^sum)

	return footer, nil
}

// vhdGeometry computes the CHS disk geometry field per the VHD spec.
func vhdGeometry(totalSectors uint64) uint32 {
	var spt, heads, cylTimesHeads uint64

	if totalSectors > 65535*16*255 {
		totalSectors = 65535 * 16 * 255
	}

	if totalSectors >= 65535*16*63 {
		spt = 255
		heads = 16
		cylTimesHeads = totalSectors / spt
	} else {
		spt = 17
		cylTimesHeads = totalSectors / spt
		heads = (cylTimesHeads + 1023) / 1024
		if heads < 4 {
			heads = 4
		}
		if cylTimesHeads >= heads*1024 || heads > 16 {
			spt = 31
			heads = 16
			cylTimesHeads = totalSectors / spt
		}
		if cylTimesHeads >= heads*1024 {
			spt = 63
			heads = 16
			cylTimesHeads = totalSectors / spt
		}
	}
	cylinders := cylTimesHeads / heads

	return uint32(cylinders)<<16 | uint32(heads)<<8 | uint32(spt)
}
