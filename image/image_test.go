package image_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/n01d-forge/forge-sdk/image"
	"github.com/n01d-forge/forge-sdk/types"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestImage(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Image test suite")
}

var _ = Describe("Inspect", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	write := func(name string, size int) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, make([]byte, size), 0644)).To(Succeed())
		return path
	}

	It("classifies by extension", func() {
		for name, format := range map[string]string{
			"distro.iso":  "iso",
			"distro.img":  "raw",
			"distro.raw":  "raw",
			"mac.dmg":     "dmg",
			"vm.vhd":      "vhd",
			"vm.vhdx":     "vhdx",
			"vm.vmdk":     "vmdk",
			"vm.qcow2":    "qcow2",
			"DISTRO.ISO":  "iso",
			"mystery.bin": "raw",
		} {
			info, err := image.Inspect(write(name, 512), types.NewNullLogger())
			Expect(err).ToNot(HaveOccurred())
			Expect(info.Format).To(Equal(format), name)
		}
	})

	It("reports the image size", func() {
		info, err := image.Inspect(write("distro.img", 4096), types.NewNullLogger())
		Expect(err).ToNot(HaveOccurred())
		Expect(info.SizeBytes).To(Equal(uint64(4096)))
	})

	It("fails on a missing image", func() {
		_, err := image.Inspect(filepath.Join(dir, "nope.iso"), types.NewNullLogger())
		Expect(err).To(MatchError(types.ErrSourceNotFound))
	})

	It("leaves the filesystem empty for unprobeable content", func() {
		info, err := image.Inspect(write("garbage.img", 2048), types.NewNullLogger())
		Expect(err).ToNot(HaveOccurred())
		Expect(info.Filesystem).To(BeEmpty())
	})
})

var _ = Describe("ExtractFromISO", func() {
	It("fails on a missing iso", func() {
		err := image.ExtractFromISO("/boot/vmlinuz", "/does/not/exist.iso", "/tmp/out", types.NewNullLogger())
		Expect(err).To(MatchError(types.ErrSourceNotFound))
	})

	It("rejects relative paths inside the iso", func() {
		dir := GinkgoT().TempDir()
		iso := filepath.Join(dir, "image.iso")
		Expect(os.WriteFile(iso, make([]byte, 1024), 0644)).To(Succeed())

		for _, p := range []string{"", "boot/vmlinuz", "/"} {
			err := image.ExtractFromISO(p, iso, filepath.Join(dir, "out"), types.NewNullLogger())
			Expect(err).To(MatchError(types.ErrRejectedInput), p)
		}
	})
})
