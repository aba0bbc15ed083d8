package burner_test

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/n01d-forge/forge-sdk/burner"
	"github.com/n01d-forge/forge-sdk/types"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBurner(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Burner test suite")
}

type recordingRunner struct {
	count int
}

func (r *recordingRunner) Run(stdin, name string, args ...string) ([]byte, error) {
	r.count++
	return nil, nil
}

// writeTestPair creates a random image file and a larger zeroed device file
// standing in for the target.
func writeTestPair(dir string, imageSize, deviceSize int) (string, string) {
	image := filepath.Join(dir, "source.img")
	device := filepath.Join(dir, "device")

	payload := make([]byte, imageSize)
	_, err := rand.Read(payload)
	Expect(err).ToNot(HaveOccurred())
	Expect(os.WriteFile(image, payload, 0644)).To(Succeed())
	Expect(os.WriteFile(device, make([]byte, deviceSize), 0644)).To(Succeed())

	return image, device
}

func newTestBurner() (*burner.Burner, *recordingRunner) {
	runner := &recordingRunner{}
	b := burner.New(types.NewNullLogger())
	b.Formatter.Runner = runner
	b.Formatter.Lookup = func(string) error { return nil }
	return b, runner
}

var _ = Describe("Burner", func() {
	var (
		b      *burner.Burner
		runner *recordingRunner
		image  string
		device string
	)

	BeforeEach(func() {
		b, runner = newTestBurner()
		image, device = writeTestPair(GinkgoT().TempDir(), 3000, 5000)
	})

	It("writes the image and verifies it against the device", func() {
		res, err := b.Run(types.BurnConfig{
			ImagePath:        image,
			TargetDevice:     device,
			VerifyAfterWrite: true,
			Bootloader:       types.BootloaderConfig{Mode: "uefi"},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(res.BytesWritten).To(Equal(uint64(3000)))
		Expect(res.HashVerification).ToNot(BeNil())
		Expect(res.HashVerification.Verified).To(BeTrue())
		Expect(res.Duration).To(BeNumerically(">", 0))

		written, err := os.ReadFile(device)
		Expect(err).ToNot(HaveOccurred())
		source, err := os.ReadFile(image)
		Expect(err).ToNot(HaveOccurred())
		Expect(written[:3000]).To(Equal(source))

		Expect(b.State.Progress().Stage).To(Equal(burner.StageComplete))
		Expect(b.State.Running()).To(BeFalse())
	})

	It("erases the whole device before writing when asked to", func() {
		Expect(os.WriteFile(device, bytes.Repeat([]byte{0xEE}, 5000), 0644)).To(Succeed())

		res, err := b.Run(types.BurnConfig{
			ImagePath:    image,
			TargetDevice: device,
			EraseBefore:  true,
			EraseMethod:  "zeros",
			Bootloader:   types.BootloaderConfig{Mode: "uefi"},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Success).To(BeTrue())

		// Past the image extent only the erase pattern may remain.
		written, err := os.ReadFile(device)
		Expect(err).ToNot(HaveOccurred())
		Expect(written[3000:]).To(Equal(make([]byte, 2000)))
	})

	It("reports a hash mismatch as a result, not an error", func() {
		// /dev/null swallows the write and reads back empty, so the device
		// digest can never match the image digest.
		res, err := b.Run(types.BurnConfig{
			ImagePath:        image,
			TargetDevice:     "/dev/null",
			VerifyAfterWrite: true,
			Bootloader:       types.BootloaderConfig{Mode: "uefi"},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(res.Message).To(ContainSubstring("verification failed"))
		Expect(res.HashVerification.Verified).To(BeFalse())
		Expect(res.HashVerification.Expected).ToNot(Equal(res.HashVerification.Hex))
		Expect(b.State.Progress().Stage).To(Equal(burner.StageComplete))
	})

	It("flags a byte tampered after the write as a verification mismatch", func() {
		cfg := types.BurnConfig{
			ImagePath:    image,
			TargetDevice: device,
			Bootloader:   types.BootloaderConfig{Mode: "uefi"},
		}
		res, err := b.Run(cfg)
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Success).To(BeTrue())

		// Flip one byte of the written extent behind the pipeline's back.
		written, err := os.ReadFile(device)
		Expect(err).ToNot(HaveOccurred())
		written[1500] ^= 0xFF
		Expect(os.WriteFile(device, written, 0644)).To(Succeed())

		ver, err := burner.VerifyStage(b, cfg, 3000)
		Expect(err).ToNot(HaveOccurred())
		Expect(ver.Verified).To(BeFalse())
		Expect(ver.Expected).ToNot(Equal(ver.Hex))
	})

	It("stops the write loop before the first chunk when cancelled", func() {
		Expect(os.WriteFile(device, bytes.Repeat([]byte{0xEE}, 5000), 0644)).To(Succeed())
		burner.ForceCancel(b.State)

		written, err := burner.WriteStage(b, types.BurnConfig{
			ImagePath:    image,
			TargetDevice: device,
		}, 3000)
		Expect(err).To(MatchError(types.ErrOperationCancelled))
		Expect(written).To(BeZero())
		Expect(b.State.Progress().BytesDone).To(BeZero())

		// No chunk was committed, so the device content is untouched.
		untouched, err := os.ReadFile(device)
		Expect(err).ToNot(HaveOccurred())
		Expect(untouched).To(Equal(bytes.Repeat([]byte{0xEE}, 5000)))
	})

	It("aborts on an unknown encryption type without rolling back the image", func() {
		_, err := b.Run(types.BurnConfig{
			ImagePath:    image,
			TargetDevice: device,
			Encryption: &types.EncryptionSettings{
				Enabled:  true,
				Type:     "bitlocker",
				Password: "hunter2",
			},
			Bootloader: types.BootloaderConfig{Mode: "uefi"},
		})
		Expect(err).To(MatchError(types.ErrRejectedInput))
		Expect(b.State.Progress().Stage).To(Equal(burner.StageFailed))

		// The image written before the failing stage stays on the device.
		written, err := os.ReadFile(device)
		Expect(err).ToNot(HaveOccurred())
		source, err := os.ReadFile(image)
		Expect(err).ToNot(HaveOccurred())
		Expect(written[:3000]).To(Equal(source))
	})

	It("refuses a missing source image and stays idle", func() {
		_, err := b.Run(types.BurnConfig{
			ImagePath:    filepath.Join(GinkgoT().TempDir(), "nope.img"),
			TargetDevice: device,
			Bootloader:   types.BootloaderConfig{Mode: "uefi"},
		})
		Expect(err).To(MatchError(types.ErrSourceNotFound))
		Expect(b.State.Progress().Stage).To(Equal(burner.StageIdle))
		Expect(b.State.Running()).To(BeFalse())
	})

	It("fails on an unwritable target device", func() {
		_, err := b.Run(types.BurnConfig{
			ImagePath:    image,
			TargetDevice: filepath.Join(GinkgoT().TempDir(), "missing-device"),
			Bootloader:   types.BootloaderConfig{Mode: "uefi"},
		})
		Expect(err).To(MatchError(types.ErrDeviceOpenFailed))
		Expect(b.State.Progress().Stage).To(Equal(burner.StageFailed))
	})

	It("rejects an unknown bootloader mode", func() {
		_, err := b.Run(types.BurnConfig{
			ImagePath:    image,
			TargetDevice: device,
			Bootloader:   types.BootloaderConfig{Mode: "coreboot"},
		})
		Expect(err).To(MatchError(types.ErrRejectedInput))
		Expect(b.State.Progress().Stage).To(Equal(burner.StageFailed))
	})

	It("rejects persistence with no size", func() {
		_, err := b.Run(types.BurnConfig{
			ImagePath:    image,
			TargetDevice: device,
			Bootloader:   types.BootloaderConfig{Mode: "uefi", PersistentStorage: true},
		})
		Expect(err).To(MatchError(types.ErrRejectedInput))
	})

	It("rejects an unknown erase method before touching the device", func() {
		Expect(os.WriteFile(device, bytes.Repeat([]byte{0xEE}, 5000), 0644)).To(Succeed())

		_, err := b.Run(types.BurnConfig{
			ImagePath:    image,
			TargetDevice: device,
			EraseBefore:  true,
			EraseMethod:  "quantum",
			Bootloader:   types.BootloaderConfig{Mode: "uefi"},
		})
		Expect(err).To(MatchError(types.ErrRejectedInput))

		untouched, err := os.ReadFile(device)
		Expect(err).ToNot(HaveOccurred())
		Expect(untouched).To(Equal(bytes.Repeat([]byte{0xEE}, 5000)))
	})

	It("returns ErrAlreadyRunning while the state is claimed", func() {
		claimed := burner.NewOperationState()
		Expect(burner.Claim(claimed)).To(BeTrue())
		b.State = claimed

		_, err := b.Run(types.BurnConfig{
			ImagePath:    image,
			TargetDevice: device,
			Bootloader:   types.BootloaderConfig{Mode: "uefi"},
		})
		Expect(err).To(MatchError(types.ErrAlreadyRunning))
		Expect(claimed.Running()).To(BeTrue())
	})

	It("never reaches encryption setup once cancelled mid-run", func() {
		// A fifo as the source lets the test cancel while the pipeline is
		// blocked reading the next chunk, so the stop request always lands
		// before the write stage finishes.
		fifo := filepath.Join(GinkgoT().TempDir(), "source.img")
		Expect(syscall.Mkfifo(fifo, 0600)).To(Succeed())

		done := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			defer close(done)
			w, err := os.OpenFile(fifo, os.O_WRONLY, 0)
			Expect(err).ToNot(HaveOccurred())
			_, err = w.Write(make([]byte, 3000))
			Expect(err).ToNot(HaveOccurred())
			b.State.Cancel()
			// Only now does the reader see EOF, with the cancel already set.
			Expect(w.Close()).To(Succeed())
		}()

		_, err := b.Run(types.BurnConfig{
			ImagePath:    fifo,
			TargetDevice: device,
			Encryption: &types.EncryptionSettings{
				Enabled:  true,
				Type:     "luks2",
				Password: "hunter2",
			},
			Bootloader: types.BootloaderConfig{Mode: "uefi"},
		})
		<-done
		Expect(err).To(MatchError(types.ErrOperationCancelled))
		Expect(runner.count).To(BeZero(), "no formatting after cancellation")
		Expect(b.State.Progress().Stage).To(Equal(burner.StageCancelled))
		Expect(b.State.Running()).To(BeFalse())

		// The next run starts clean and completes.
		res, err := b.Run(types.BurnConfig{
			ImagePath:    image,
			TargetDevice: device,
			Bootloader:   types.BootloaderConfig{Mode: "uefi"},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Success).To(BeTrue())
	})

	It("runs the encryption stage through the formatter", func() {
		res, err := b.Run(types.BurnConfig{
			ImagePath:    image,
			TargetDevice: device,
			Encryption: &types.EncryptionSettings{
				Enabled:  true,
				Type:     "luks2",
				Password: "hunter2",
			},
			Bootloader: types.BootloaderConfig{Mode: "uefi"},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(runner.count).To(Equal(2))
	})

	It("skips the encryption stage when disabled", func() {
		res, err := b.Run(types.BurnConfig{
			ImagePath:    image,
			TargetDevice: device,
			Encryption:   &types.EncryptionSettings{Enabled: false, Type: "luks2"},
			Bootloader:   types.BootloaderConfig{Mode: "uefi"},
		})
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(runner.count).To(BeZero())
	})
})

var _ = Describe("OperationState", func() {
	It("ignores Cancel while nothing runs", func() {
		s := burner.NewOperationState()
		s.Cancel()
		Expect(s.Cancelled()).To(BeFalse())
	})

	It("clears a cancel latched between runs when the next run claims the state", func() {
		s := burner.NewOperationState()
		// A Cancel can slip its store in after the finishing run cleared the
		// flag; the latched value must not leak into the next run.
		burner.ForceCancel(s)
		Expect(burner.Claim(s)).To(BeTrue())
		Expect(s.Cancelled()).To(BeFalse())
	})

	It("reports zero percent while the stage total is unknown", func() {
		s := burner.NewOperationState()
		snap := s.Progress()
		Expect(snap.Stage).To(Equal(burner.StageIdle))
		Expect(snap.Percent).To(Equal(0.0))
		Expect(snap.TotalBytes).To(BeZero())
	})
})
