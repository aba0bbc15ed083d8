// Package erase overwrites the full extent of a block device with one or
// more passes of a chosen byte pattern.
package erase

import (
	"fmt"
	"strings"

	"github.com/n01d-forge/forge-sdk/types"
)

type methodKind int

const (
	kindZeros methodKind = iota
	kindRandom
	kindDoD
	kindGutmann
	kindCustomRandom
)

// Method is the closed set of supported erase methods. The zero value is the
// single zero-fill pass.
type Method struct {
	kind   methodKind
	passes int
}

func Zeros() Method   { return Method{kind: kindZeros, passes: 1} }
func Random() Method  { return Method{kind: kindRandom, passes: 1} }
func DoD() Method     { return Method{kind: kindDoD, passes: 3} }
func Gutmann() Method { return Method{kind: kindGutmann, passes: 35} }

// CustomRandom is n passes of random data.
func CustomRandom(n int) (Method, error) {
	if n < 1 {
		return Method{}, fmt.Errorf("%w: custom random needs at least one pass, got %d", types.ErrRejectedInput, n)
	}
	return Method{kind: kindCustomRandom, passes: n}, nil
}

// Passes returns how many full-device sweeps the method performs.
func (m Method) Passes() int {
	if m.kind == kindZeros && m.passes == 0 {
		// zero value
		return 1
	}
	return m.passes
}

func (m Method) String() string {
	switch m.kind {
	case kindZeros:
		return "Zero Fill"
	case kindRandom:
		return "Random Data"
	case kindDoD:
		return "DoD 5220.22-M"
	case kindGutmann:
		return "Gutmann (35-pass)"
	case kindCustomRandom:
		return fmt.Sprintf("Custom Random (%d-pass)", m.passes)
	}
	return "unknown"
}

// ParseMethod maps a config string to a Method. The passes argument is only
// used by "custom". Unknown names are rejected before any device is touched.
func ParseMethod(name string, passes int) (Method, error) {
	switch strings.ToLower(name) {
	case "zeros", "zero":
		return Zeros(), nil
	case "random":
		return Random(), nil
	case "dod":
		return DoD(), nil
	case "gutmann":
		return Gutmann(), nil
	case "custom", "custom-random":
		return CustomRandom(passes)
	default:
		return Method{}, fmt.Errorf("%w: unknown erase method %q", types.ErrRejectedInput, name)
	}
}

// patternForPass selects the pattern written during the given pass.
func (m Method) patternForPass(pass int) Pattern {
	switch m.kind {
	case kindRandom, kindCustomRandom:
		return RandomPattern()
	case kindDoD:
		// DoD 5220.22-M: zeros, ones, random
		switch pass {
		case 0:
			return ZerosPattern()
		case 1:
			return OnesPattern()
		default:
			return RandomPattern()
		}
	case kindGutmann:
		return gutmannPattern(pass)
	default:
		return ZerosPattern()
	}
}
