// Package digest computes streaming cryptographic hashes with progress
// reporting, for plain hashing and for write verification.
package digest

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/n01d-forge/forge-sdk/constants"
	"github.com/n01d-forge/forge-sdk/types"
)

// newHasher maps an algorithm name to its hash constructor. Checked before
// any I/O happens so a bad name never opens a device.
func newHasher(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	case "md5":
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnsupportedAlgorithm, algorithm)
	}
}

// Digest streams r through the selected algorithm and returns the lowercase
// hex digest. A positive limit caps how many bytes are read, which is how a
// destination device larger than the source image gets compared over the
// written extent only. The sink sees monotonically increasing progress after
// every chunk.
func Digest(r io.Reader, algorithm string, limit int64, sink types.ProgressSink) (*types.DigestResult, error) {
	hasher, err := newHasher(algorithm)
	if err != nil {
		return nil, err
	}

	if limit > 0 {
		r = io.LimitReader(r, limit)
	}

	buf := make([]byte, constants.DigestChunkSize)
	for {
		if sink != nil && sink.Cancelled() {
			return nil, types.ErrOperationCancelled
		}

		n, err := r.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			if sink != nil {
				sink.Add(uint64(n))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read while hashing: %v", types.ErrIoFailure, err)
		}
	}

	// Verified stays false here: a plain digest compared nothing. Verify and
	// the burn pipeline set it once an expected value was actually checked.
	return &types.DigestResult{
		Algorithm: strings.ToLower(algorithm),
		Hex:       hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// File hashes the whole file at path.
func File(path, algorithm string, sink types.ProgressSink) (*types.DigestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrSourceNotFound, path, err)
	}
	defer f.Close()

	return Digest(f, algorithm, 0, sink)
}

// Verify hashes the file at path and compares the result with expectedHex,
// case-insensitively. The expected digest is echoed back untouched.
func Verify(path, expectedHex, algorithm string, sink types.ProgressSink) (*types.DigestResult, error) {
	res, err := File(path, algorithm, sink)
	if err != nil {
		return nil, err
	}

	res.Expected = expectedHex
	res.Verified = strings.EqualFold(res.Hex, expectedHex)
	return res, nil
}
