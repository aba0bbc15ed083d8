package digest_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/n01d-forge/forge-sdk/digest"
	"github.com/n01d-forge/forge-sdk/types"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDigest(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Digest test suite")
}

// helloWorldSHA256 is the well-known digest of the exact bytes "Hello, World!".
const helloWorldSHA256 = "dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f"

type tally struct {
	total atomic.Uint64
}

func (t *tally) Add(delta uint64) { t.total.Add(delta) }
func (t *tally) Cancelled() bool  { return false }

var _ = Describe("Digest", func() {
	It("hashes a known literal with sha256", func() {
		res, err := digest.Digest(strings.NewReader("Hello, World!"), "sha256", 0, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Algorithm).To(Equal("sha256"))
		Expect(res.Hex).To(Equal(helloWorldSHA256))
	})

	It("claims no verification when nothing was compared", func() {
		res, err := digest.Digest(strings.NewReader("Hello, World!"), "sha256", 0, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Verified).To(BeFalse())
		Expect(res.Expected).To(BeEmpty())
	})

	It("rejects unknown algorithms before any I/O", func() {
		_, err := digest.Digest(strings.NewReader("data"), "crc32", 0, nil)
		Expect(err).To(MatchError(types.ErrUnsupportedAlgorithm))
	})

	It("normalizes the algorithm name", func() {
		res, err := digest.Digest(strings.NewReader("Hello, World!"), "SHA256", 0, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Algorithm).To(Equal("sha256"))
		Expect(res.Hex).To(Equal(helloWorldSHA256))
	})

	It("caps reads at the byte limit", func() {
		full, err := digest.Digest(strings.NewReader("Hello, World!"), "sha256", 0, nil)
		Expect(err).ToNot(HaveOccurred())

		capped, err := digest.Digest(strings.NewReader("Hello, World!xxxxxxxx"), "sha256", 13, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(capped.Hex).To(Equal(full.Hex))
	})

	It("reports progress per chunk", func() {
		sink := &tally{}
		_, err := digest.Digest(strings.NewReader(strings.Repeat("a", 3000)), "sha512", 0, sink)
		Expect(err).ToNot(HaveOccurred())
		Expect(sink.total.Load()).To(Equal(uint64(3000)))
	})

	It("supports the legacy md5 algorithm", func() {
		res, err := digest.Digest(strings.NewReader("Hello, World!"), "md5", 0, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Hex).To(Equal("65a8e27d8879283831b664bd8b7f0ad4"))
	})
})

var _ = Describe("Verify", func() {
	var imagePath string

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		imagePath = filepath.Join(dir, "test.img")
		Expect(os.WriteFile(imagePath, []byte("Hello, World!"), 0644)).To(Succeed())
	})

	It("verifies a matching digest regardless of letter case", func() {
		res, err := digest.Verify(imagePath, strings.ToUpper(helloWorldSHA256), "sha256", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Verified).To(BeTrue())
		Expect(res.Expected).To(Equal(strings.ToUpper(helloWorldSHA256)))
	})

	It("flags a mismatching digest without failing", func() {
		res, err := digest.Verify(imagePath, strings.Repeat("0", 64), "sha256", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(res.Verified).To(BeFalse())
	})

	It("fails on a missing file", func() {
		_, err := digest.File("/does/not/exist.img", "sha256", nil)
		Expect(err).To(MatchError(types.ErrSourceNotFound))
	})
})
