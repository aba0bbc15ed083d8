package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"unicode/utf16"

	"github.com/n01d-forge/forge-sdk/types"
)

const gptSectorSize = 512

// GPTPartition is one entry of a GUID partition table, as read from a raw
// image or a device.
type GPTPartition struct {
	Number     int    `json:"number" yaml:"number"`
	Name       string `json:"name" yaml:"name"`
	FirstLBA   uint64 `json:"first_lba" yaml:"first_lba"`
	LastLBA    uint64 `json:"last_lba" yaml:"last_lba"`
	NumSectors uint64 `json:"num_sectors" yaml:"num_sectors"`
}

// GPTPartitions reads the GUID partition table of the file at path. Works on
// raw images and block devices alike; content without a GPT signature is
// rejected.
func GPTPartitions(path string) ([]GPTPartition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrSourceNotFound, path, err)
	}
	defer f.Close()

	// The GPT header lives at sector 1, after the protective MBR
	hdrBuf := make([]byte, gptSectorSize)
	if _, err := f.ReadAt(hdrBuf, gptSectorSize); err != nil {
		return nil, fmt.Errorf("%w: reading GPT header: %v", types.ErrIoFailure, err)
	}
	if !bytes.Equal(hdrBuf[0:8], []byte("EFI PART")) {
		return nil, fmt.Errorf("%w: %s has no GPT signature", types.ErrRejectedInput, path)
	}

	partitionEntryLBA := binary.LittleEndian.Uint64(hdrBuf[72:80])
	numPartitionEntries := binary.LittleEndian.Uint32(hdrBuf[80:84])
	sizeOfPartitionEntry := binary.LittleEndian.Uint32(hdrBuf[84:88])

	// UEFI mandates at least 128-byte entries; anything smaller cannot hold
	// the name field we decode below, and a huge value means corruption.
	if sizeOfPartitionEntry < 128 || sizeOfPartitionEntry > 4096 {
		return nil, fmt.Errorf("%w: %s reports a %d byte partition entry", types.ErrRejectedInput, path, sizeOfPartitionEntry)
	}

	partitions := []GPTPartition{}
	entryBuf := make([]byte, sizeOfPartitionEntry)

	for i := uint32(0); i < numPartitionEntries; i++ {
		offset := int64(partitionEntryLBA*gptSectorSize) + int64(i*sizeOfPartitionEntry)
		if _, err := f.ReadAt(entryBuf, offset); err != nil {
			return nil, fmt.Errorf("%w: reading partition entry %d: %v", types.ErrIoFailure, i+1, err)
		}

		firstLBA := binary.LittleEndian.Uint64(entryBuf[32:40])
		lastLBA := binary.LittleEndian.Uint64(entryBuf[40:48])

		if firstLBA == 0 && lastLBA == 0 {
			continue // Empty partition entry
		}

		partitions = append(partitions, GPTPartition{
			Number:     int(i + 1),
			Name:       decodeUTF16String(entryBuf[56 : 56+72]),
			FirstLBA:   firstLBA,
			LastLBA:    lastLBA,
			NumSectors: lastLBA - firstLBA + 1,
		})
	}

	return partitions, nil
}

// decodeUTF16String decodes the UTF-16LE partition name, stopping at the
// first NUL.
func decodeUTF16String(b []byte) string {
	u16 := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		ch := binary.LittleEndian.Uint16(b[i : i+2])
		if ch == 0x0000 {
			break
		}
		u16 = append(u16, ch)
	}
	return string(utf16.Decode(u16))
}
