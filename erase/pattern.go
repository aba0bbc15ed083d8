package erase

import (
	"crypto/rand"
	"fmt"

	"github.com/n01d-forge/forge-sdk/types"
)

type patternKind int

const (
	patternZeros patternKind = iota
	patternOnes
	patternRandom
	patternFixed
)

// Pattern is the byte pattern written during a single pass: all zeros, all
// ones, fresh random data, or a repeating 3-byte motif.
type Pattern struct {
	kind  patternKind
	motif [3]byte
}

func ZerosPattern() Pattern  { return Pattern{kind: patternZeros} }
func OnesPattern() Pattern   { return Pattern{kind: patternOnes} }
func RandomPattern() Pattern { return Pattern{kind: patternRandom} }
func FixedPattern(motif [3]byte) Pattern {
	return Pattern{kind: patternFixed, motif: motif}
}

// IsRandom reports whether the pattern must be re-drawn for every chunk.
// Random data is never reused across chunks so no periodicity appears over
// the whole pass.
func (p Pattern) IsRandom() bool { return p.kind == patternRandom }

// Fill writes the pattern into buf. For random patterns the bytes come from
// the crypto/rand source, never from a seeded PRNG.
func (p Pattern) Fill(buf []byte) error {
	switch p.kind {
	case patternZeros:
		for i := range buf {
			buf[i] = 0x00
		}
	case patternOnes:
		for i := range buf {
			buf[i] = 0xFF
		}
	case patternRandom:
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("%w: drawing random pattern: %v", types.ErrIoFailure, err)
		}
	case patternFixed:
		for i := range buf {
			buf[i] = p.motif[i%3]
		}
	}
	return nil
}

// gutmannPattern is the fixed 35-entry pass table of the Gutmann method.
// Passes 0-3 and 31-34 are random, the rest are prescribed motifs.
func gutmannPattern(pass int) Pattern {
	switch {
	case pass <= 3:
		return RandomPattern()
	case pass >= 31:
		return RandomPattern()
	}

	motifs := map[int][3]byte{
		4:  {0x55, 0x55, 0x55},
		5:  {0xAA, 0xAA, 0xAA},
		6:  {0x92, 0x49, 0x24},
		7:  {0x49, 0x24, 0x92},
		8:  {0x24, 0x92, 0x49},
		9:  {0x00, 0x00, 0x00},
		10: {0x11, 0x11, 0x11},
		11: {0x22, 0x22, 0x22},
		12: {0x33, 0x33, 0x33},
		13: {0x44, 0x44, 0x44},
		14: {0x55, 0x55, 0x55},
		15: {0x66, 0x66, 0x66},
		16: {0x77, 0x77, 0x77},
		17: {0x88, 0x88, 0x88},
		18: {0x99, 0x99, 0x99},
		19: {0xAA, 0xAA, 0xAA},
		20: {0xBB, 0xBB, 0xBB},
		21: {0xCC, 0xCC, 0xCC},
		22: {0xDD, 0xDD, 0xDD},
		23: {0xEE, 0xEE, 0xEE},
		24: {0xFF, 0xFF, 0xFF},
		25: {0x92, 0x49, 0x24},
		26: {0x49, 0x24, 0x92},
		27: {0x24, 0x92, 0x49},
		28: {0x6D, 0xB6, 0xDB},
		29: {0xB6, 0xDB, 0x6D},
		30: {0xDB, 0x6D, 0xB6},
	}
	return FixedPattern(motifs[pass])
}
