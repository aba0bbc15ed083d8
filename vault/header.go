package vault

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/gofrs/uuid"

	"github.com/n01d-forge/forge-sdk/types"
)

// VeraCrypt encryption algorithm identifiers.
const (
	VeraCryptCipherAES uint32 = iota + 1
	VeraCryptCipherSerpent
	VeraCryptCipherTwofish
	VeraCryptCipherCamellia
	VeraCryptCipherKuznyechik
	VeraCryptCipherAESTwofish
	VeraCryptCipherAESTwofishSerpent
	VeraCryptCipherSerpentAES
	VeraCryptCipherSerpentTwofishAES
	VeraCryptCipherTwofishSerpent
)

// VeraCrypt hash algorithm identifiers.
const (
	VeraCryptHashSHA512 uint32 = iota + 1
	VeraCryptHashWhirlpool
	VeraCryptHashSHA256
	VeraCryptHashBlake2s
	VeraCryptHashStreebog
)

const (
	// veraCryptAreaOffset is the fixed 128 KiB offset where the encrypted
	// area starts on a VeraCrypt volume.
	veraCryptAreaOffset = 131072
	luksPayloadOffset   = 4096
)

// LUKS2Header is the metadata record describing a LUKS2 container. It is a
// pure data constructor; writing the actual on-disk container is the
// formatting tool's job.
type LUKS2Header struct {
	Version       uint16
	CipherName    string
	CipherMode    string
	HashSpec      string
	PayloadOffset uint64
	KeyBytes      uint32
	MKDigest      [20]byte
	MKDigestSalt  [KeySize]byte
	MKDigestIter  uint32
	UUID          string
}

// NewLUKS2Header builds a LUKS2 header with a fresh UUID and a fresh 32-byte
// salt. Salts are never reused across volumes.
func NewLUKS2Header(cipher, hash string, keyBits, iterations uint32) (*LUKS2Header, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("%w: generating volume UUID: %v", types.ErrKeyDerivationFailed, err)
	}
	salt, err := RandomSalt()
	if err != nil {
		return nil, err
	}

	return &LUKS2Header{
		Version:       2,
		CipherName:    "aes",
		CipherMode:    cipher,
		HashSpec:      hash,
		PayloadOffset: luksPayloadOffset,
		KeyBytes:      keyBits / 8,
		MKDigestSalt:  salt,
		MKDigestIter:  iterations,
		UUID:          id.String(),
	}, nil
}

// VeraCryptHeader is the metadata record describing a VeraCrypt volume,
// including its freshly generated master key material.
type VeraCryptHeader struct {
	Version                uint16
	RequiredProgramVersion uint16
	CRC32                  uint32
	VolumeCreationTime     uint64
	HeaderCreationTime     uint64
	HiddenVolumeSize       uint64
	VolumeSize             uint64
	EncryptedAreaStart     uint64
	EncryptedAreaLength    uint64
	Flags                  uint32
	SectorSize             uint32
	EncryptionAlgorithm    uint32
	HashAlgorithm          uint32
	MasterKey              [64]byte
	SecondaryKey           [64]byte
	Salt                   [64]byte
}

// NewVeraCryptHeader builds a VeraCrypt header for a volume of the given
// size. Master key, secondary key and salt are drawn independently from the
// secure random source on every call.
func NewVeraCryptHeader(volumeSize uint64, cipherID, hashID uint32) (*VeraCryptHeader, error) {
	if volumeSize <= veraCryptAreaOffset {
		return nil, fmt.Errorf("%w: volume of %d bytes cannot hold the %d byte header area", types.ErrRejectedInput, volumeSize, veraCryptAreaOffset)
	}

	h := &VeraCryptHeader{
		Version:                5,
		RequiredProgramVersion: 0x10b,
		VolumeCreationTime:     uint64(time.Now().Unix()),
		HeaderCreationTime:     uint64(time.Now().Unix()),
		VolumeSize:             volumeSize,
		EncryptedAreaStart:     veraCryptAreaOffset,
		EncryptedAreaLength:    volumeSize - veraCryptAreaOffset,
		SectorSize:             512,
		EncryptionAlgorithm:    cipherID,
		HashAlgorithm:          hashID,
	}

	for _, dst := range [][]byte{h.MasterKey[:], h.SecondaryKey[:], h.Salt[:]} {
		if _, err := rand.Read(dst); err != nil {
			return nil, fmt.Errorf("%w: generating key material: %v", types.ErrKeyDerivationFailed, err)
		}
	}

	return h, nil
}
