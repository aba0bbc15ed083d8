package image_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"unicode/utf16"

	"github.com/n01d-forge/forge-sdk/image"
	"github.com/n01d-forge/forge-sdk/types"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// writeGPTImage builds a minimal disk image with a GPT header at sector 1 and
// the given entries at sector 2.
func writeGPTImage(path string, entries []image.GPTPartition) {
	const sector = 512
	const entrySize = 128

	disk := make([]byte, sector*4)
	copy(disk[sector:], []byte("EFI PART"))
	binary.LittleEndian.PutUint64(disk[sector+72:], 2)                    // partition entry LBA
	binary.LittleEndian.PutUint32(disk[sector+80:], uint32(len(entries))) // number of entries
	binary.LittleEndian.PutUint32(disk[sector+84:], entrySize)

	for i, e := range entries {
		entry := disk[2*sector+i*entrySize:]
		binary.LittleEndian.PutUint64(entry[32:], e.FirstLBA)
		binary.LittleEndian.PutUint64(entry[40:], e.LastLBA)
		for j, ch := range utf16.Encode([]rune(e.Name)) {
			binary.LittleEndian.PutUint16(entry[56+2*j:], ch)
		}
	}

	Expect(os.WriteFile(path, disk, 0644)).To(Succeed())
}

var _ = Describe("GPTPartitions", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("reads names and extents from the table", func() {
		path := filepath.Join(dir, "disk.img")
		writeGPTImage(path, []image.GPTPartition{
			{Name: "efi", FirstLBA: 2048, LastLBA: 4095},
			{Name: "state", FirstLBA: 4096, LastLBA: 8191},
		})

		parts, err := image.GPTPartitions(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(parts).To(HaveLen(2))
		Expect(parts[0].Number).To(Equal(1))
		Expect(parts[0].Name).To(Equal("efi"))
		Expect(parts[0].FirstLBA).To(Equal(uint64(2048)))
		Expect(parts[0].NumSectors).To(Equal(uint64(2048)))
		Expect(parts[1].Name).To(Equal("state"))
		Expect(parts[1].NumSectors).To(Equal(uint64(4096)))
	})

	It("skips empty entries", func() {
		path := filepath.Join(dir, "disk.img")
		writeGPTImage(path, []image.GPTPartition{
			{}, // unused slot
			{Name: "data", FirstLBA: 64, LastLBA: 127},
		})

		parts, err := image.GPTPartitions(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(parts).To(HaveLen(1))
		Expect(parts[0].Number).To(Equal(2))
		Expect(parts[0].Name).To(Equal("data"))
	})

	It("rejects a corrupt entry size instead of reading past it", func() {
		path := filepath.Join(dir, "corrupt.img")
		writeGPTImage(path, []image.GPTPartition{{Name: "efi", FirstLBA: 2048, LastLBA: 4095}})

		disk, err := os.ReadFile(path)
		Expect(err).ToNot(HaveOccurred())
		binary.LittleEndian.PutUint32(disk[512+84:], 64) // entry size below the 128 byte minimum
		Expect(os.WriteFile(path, disk, 0644)).To(Succeed())

		_, err = image.GPTPartitions(path)
		Expect(err).To(MatchError(types.ErrRejectedInput))
	})

	It("rejects content without a GPT signature", func() {
		path := filepath.Join(dir, "not-gpt.img")
		Expect(os.WriteFile(path, make([]byte, 4096), 0644)).To(Succeed())

		_, err := image.GPTPartitions(path)
		Expect(err).To(MatchError(types.ErrRejectedInput))
	})

	It("fails on a missing file", func() {
		_, err := image.GPTPartitions(filepath.Join(dir, "nope.img"))
		Expect(err).To(MatchError(types.ErrSourceNotFound))
	})
})
