package image_test

import (
	"archive/tar"
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/n01d-forge/forge-sdk/constants"
	"github.com/n01d-forge/forge-sdk/image"
	"github.com/n01d-forge/forge-sdk/types"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RawToVHD", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("pads to a megabyte and appends a valid fixed footer", func() {
		source := filepath.Join(dir, "disk.raw")
		Expect(os.WriteFile(source, make([]byte, 3000), 0644)).To(Succeed())

		Expect(image.RawToVHD(source, types.NewNullLogger())).To(Succeed())

		vhd, err := os.ReadFile(source + ".vhd")
		Expect(err).ToNot(HaveOccurred())
		// Data rounded up to 1 MB minus the footer, plus the 512 byte footer
		Expect(int64(len(vhd))).To(Equal(constants.MB))

		footer := vhd[len(vhd)-512:]
		Expect(string(footer[0:8])).To(Equal("conectix"))
		Expect(binary.BigEndian.Uint32(footer[60:64])).To(Equal(uint32(2)), "disk type fixed")
		Expect(binary.BigEndian.Uint64(footer[48:56])).To(Equal(uint64(constants.MB-512)), "current size")

		// The checksum is the ones complement of the byte sum with the
		// checksum field zeroed
		stored := binary.BigEndian.Uint32(footer[64:68])
		var sum uint32
		for i, b := range footer {
			if i >= 64 && i < 68 {
				continue
			}
			sum += uint32(b)
		}
		Expect(stored).To(Equal(^sum))
	})

	It("fails on a missing source", func() {
		err := image.RawToVHD(filepath.Join(dir, "nope.raw"), types.NewNullLogger())
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("RawToGCE", func() {
	It("packs the padded image into a gzipped GNU tar and removes the raw file", func() {
		dir := GinkgoT().TempDir()
		source := filepath.Join(dir, "disk.raw")
		Expect(os.WriteFile(source, []byte("firmware"), 0644)).To(Succeed())

		Expect(image.RawToGCE(source, types.NewNullLogger())).To(Succeed())

		_, err := os.Stat(source)
		Expect(os.IsNotExist(err)).To(BeTrue(), "raw image is removed")

		f, err := os.Open(source + ".tar.gz")
		Expect(err).ToNot(HaveOccurred())
		defer f.Close()
		gz, err := gzip.NewReader(f)
		Expect(err).ToNot(HaveOccurred())
		hdr, err := tar.NewReader(gz).Next()
		Expect(err).ToNot(HaveOccurred())
		Expect(hdr.Name).To(Equal("disk.raw"))
		Expect(hdr.Size).To(Equal(constants.GB), "padded to a whole GB")
	})
})
