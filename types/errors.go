package types

import "errors"

// Failure kinds surfaced by the burn/erase/verify pipeline. Callers are
// expected to match with errors.Is after unwrapping.
var (
	// ErrAlreadyRunning is returned when a second pipeline is started while
	// another one holds the in-progress flag.
	ErrAlreadyRunning = errors.New("an operation is already in progress")
	// ErrSourceNotFound is returned when the source image does not exist or
	// cannot be read.
	ErrSourceNotFound = errors.New("source image not found")
	// ErrDeviceOpenFailed is returned when the target device cannot be opened
	// for writing, e.g. because it is mounted or busy.
	ErrDeviceOpenFailed = errors.New("failed to open target device")
	// ErrIoFailure covers read/write/seek/sync errors during erase, copy or
	// verify.
	ErrIoFailure = errors.New("i/o failure")
	// ErrUnsupportedAlgorithm is returned for hash or cipher names we do not
	// recognize.
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	// ErrMalformedCiphertext is returned when a ciphertext blob is too short
	// to even contain a nonce.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	// ErrAuthenticationFailed is returned when the AEAD tag does not match,
	// either because the data was tampered with or the key is wrong.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrKeyDerivationFailed is returned when the KDF cannot produce a key.
	ErrKeyDerivationFailed = errors.New("key derivation failed")
	// ErrOperationCancelled is returned when the run stops because the cancel
	// flag was set.
	ErrOperationCancelled = errors.New("operation cancelled")
	// ErrRejectedInput is returned for configuration the pipeline refuses to
	// act on, e.g. an unknown encryption type or erase method.
	ErrRejectedInput = errors.New("rejected input")
)
