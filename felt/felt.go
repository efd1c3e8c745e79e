// Package felt implements the Cairo word type: an element of the prime field
// with modulus p = 2^251 + 17*2^192 + 1. The representation is gnark-crypto's
// stark-curve base field, which uses that exact modulus.
package felt

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/stark-curve/fp"
	"github.com/holiman/uint256"
)

// Felt is a field element, always reduced into [0, p).
// It is a value type and may be freely copied.
type Felt = fp.Element

var ErrDivisionByZero = errors.New("division by zero")

// New returns the field element for v.
func New(v uint64) Felt {
	return fp.NewElement(v)
}

// Zero returns the additive identity.
func Zero() Felt {
	var z Felt
	return z
}

// One returns the multiplicative identity.
func One() Felt {
	return fp.One()
}

// FromBig reduces v modulo the field prime. Negative inputs map to p - |v| mod p.
func FromBig(v *big.Int) Felt {
	var z Felt
	z.SetBigInt(v)
	return z
}

// FromSigned returns v mod p, so negative values land in the upper range of the field.
func FromSigned(v int64) Felt {
	var z Felt
	z.SetInt64(v)
	return z
}

// FromHex parses a 0x-prefixed hex string and reduces it into the field.
func FromHex(s string) (Felt, error) {
	u, err := uint256.FromHex(s)
	if err != nil {
		return Felt{}, fmt.Errorf("invalid field element %q: %w", s, err)
	}
	b := u.Bytes32()
	var z Felt
	z.SetBytes(b[:])
	return z, nil
}

// Hex renders x as a minimal 0x-prefixed hex string.
func Hex(x *Felt) string {
	var v big.Int
	x.BigInt(&v)
	return "0x" + v.Text(16)
}

// Div returns x/y, or ErrDivisionByZero when y = 0.
func Div(x, y *Felt) (Felt, error) {
	if y.IsZero() {
		return Felt{}, ErrDivisionByZero
	}
	var z Felt
	z.Div(x, y)
	return z, nil
}

// ToUint64 narrows x to a uint64. The second return is false when x does not
// fit in 64 bits. This is the only sanctioned escape from field arithmetic,
// used for instruction decoding and pointer offset math.
func ToUint64(x *Felt) (uint64, bool) {
	b := x.Bytes()
	var u uint256.Int
	u.SetBytes32(b[:])
	if !u.IsUint64() {
		return 0, false
	}
	return u.Uint64(), true
}

// Modulus returns the field prime as a big integer.
func Modulus() *big.Int {
	return fp.Modulus()
}
