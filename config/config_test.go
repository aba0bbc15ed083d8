package config_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/n01d-forge/forge-sdk/config"
	"github.com/n01d-forge/forge-sdk/types"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config test suite")
}

const sampleProfile = `#forge-config

image_path: /images/distro.iso
target_device: /dev/sdb
verify_after_write: true
erase_before: true
erase_method: dod
bootloader:
  mode: uefi
`

var _ = Describe("Scan", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	writeProfile := func(name, content string) {
		Expect(os.WriteFile(filepath.Join(dir, name), []byte(content), 0644)).To(Succeed())
	}

	It("loads a headed yaml profile", func() {
		writeProfile("burn.yaml", sampleProfile)

		p, err := config.Scan(&config.Options{ScanDir: []string{dir}, NoLogs: true})
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Values["image_path"]).To(Equal("/images/distro.iso"))
		Expect(p.Sources).To(HaveLen(1))
	})

	It("skips files without a valid header", func() {
		writeProfile("noheader.yaml", "image_path: /images/a.iso\n")

		p, err := config.Scan(&config.Options{ScanDir: []string{dir}, NoLogs: true})
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Values).To(BeEmpty())
	})

	It("accepts the legacy header", func() {
		writeProfile("legacy.yaml", "#burn-profile\nimage_path: /images/a.iso\n")

		p, err := config.Scan(&config.Options{ScanDir: []string{dir}, NoLogs: true})
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Values["image_path"]).To(Equal("/images/a.iso"))
	})

	It("merges later sources over earlier ones", func() {
		writeProfile("010-base.yaml", sampleProfile)
		writeProfile("020-override.yaml", "#forge-config\ntarget_device: /dev/sdc\n")

		p, err := config.Scan(&config.Options{ScanDir: []string{dir}, NoLogs: true})
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Values["target_device"]).To(Equal("/dev/sdc"))
		Expect(p.Values["image_path"]).To(Equal("/images/distro.iso"))
	})

	It("reads explicit readers without header checks", func() {
		p, err := config.Scan(&config.Options{
			Readers: []io.Reader{strings.NewReader("target_device: /dev/sdd\n")},
			NoLogs:  true,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Values["target_device"]).To(Equal("/dev/sdd"))
	})

	It("applies overwrites last", func() {
		writeProfile("burn.yaml", sampleProfile)

		p, err := config.Scan(&config.Options{
			ScanDir:    []string{dir},
			Overwrites: "target_device: /dev/sdz",
			NoLogs:     true,
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(p.Values["target_device"]).To(Equal("/dev/sdz"))
	})
})

var _ = Describe("Query", func() {
	It("selects nested values", func() {
		p := &config.Profile{Values: config.ProfileValues{
			"bootloader": map[string]interface{}{"mode": "uefi"},
		}}
		res, err := p.Query("bootloader.mode")
		Expect(err).ToNot(HaveOccurred())
		Expect(strings.TrimSpace(res)).To(Equal("uefi"))
	})

	It("returns nothing for missing keys", func() {
		p := &config.Profile{Values: config.ProfileValues{"a": "b"}}
		res, err := p.Query("missing")
		Expect(err).ToNot(HaveOccurred())
		Expect(res).To(BeEmpty())
	})
})

var _ = Describe("BurnConfig", func() {
	profileFrom := func(content string) *config.Profile {
		p, err := config.Scan(&config.Options{
			Readers: []io.Reader{strings.NewReader(content)},
			NoLogs:  true,
		})
		Expect(err).ToNot(HaveOccurred())
		return p
	}

	It("decodes a complete profile", func() {
		cfg, err := profileFrom(sampleProfile).BurnConfig()
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.ImagePath).To(Equal("/images/distro.iso"))
		Expect(cfg.TargetDevice).To(Equal("/dev/sdb"))
		Expect(cfg.VerifyAfterWrite).To(BeTrue())
		Expect(cfg.EraseMethod).To(Equal("dod"))
		Expect(cfg.Bootloader.Mode).To(Equal("uefi"))
	})

	It("rejects a profile without an image", func() {
		_, err := profileFrom("target_device: /dev/sdb\n").BurnConfig()
		Expect(err).To(MatchError(types.ErrRejectedInput))
	})

	It("rejects a profile without a target", func() {
		_, err := profileFrom("image_path: /images/a.iso\n").BurnConfig()
		Expect(err).To(MatchError(types.ErrRejectedInput))
	})

	It("rejects an unknown erase method", func() {
		_, err := profileFrom(
			"image_path: /images/a.iso\ntarget_device: /dev/sdb\nerase_before: true\nerase_method: quantum\n",
		).BurnConfig()
		Expect(err).To(MatchError(types.ErrRejectedInput))
	})

	It("rejects an unknown bootloader mode", func() {
		_, err := profileFrom(
			"image_path: /images/a.iso\ntarget_device: /dev/sdb\nbootloader:\n  mode: coreboot\n",
		).BurnConfig()
		Expect(err).To(MatchError(types.ErrRejectedInput))
	})

	It("rejects enabled encryption without a password", func() {
		_, err := profileFrom(
			"image_path: /images/a.iso\ntarget_device: /dev/sdb\nencryption:\n  enabled: true\n  type: luks2\n",
		).BurnConfig()
		Expect(err).To(MatchError(types.ErrRejectedInput))
	})
})
