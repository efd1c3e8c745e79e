package memory

import (
	"encoding/json"
	"fmt"

	"github.com/cairovm/cairovm/felt"
)

// Word is the contents of a memory cell: either a field element or a
// relocatable address. Exactly one variant is populated, and a Word is
// immutable once stored.
type Word struct {
	felt  felt.Felt
	ptr   Relocatable
	isPtr bool
}

// FeltWord wraps a field element.
func FeltWord(f felt.Felt) Word {
	return Word{felt: f}
}

// Uint64Word wraps a small integer as a field element.
func Uint64Word(v uint64) Word {
	return Word{felt: felt.New(v)}
}

// PtrWord wraps a relocatable address.
func PtrWord(p Relocatable) Word {
	return Word{ptr: p, isPtr: true}
}

// Felt returns the field-element variant, if that is what the word holds.
func (w Word) Felt() (felt.Felt, bool) {
	return w.felt, !w.isPtr
}

// Ptr returns the relocatable variant, if that is what the word holds.
func (w Word) Ptr() (Relocatable, bool) {
	return w.ptr, w.isPtr
}

func (w Word) IsPtr() bool {
	return w.isPtr
}

// Equal compares words structurally: same variant and same value.
func (w Word) Equal(o Word) bool {
	if w.isPtr != o.isPtr {
		return false
	}
	if w.isPtr {
		return w.ptr == o.ptr
	}
	return w.felt.Equal(&o.felt)
}

// IsZero reports whether the word is the zero field element or the zero
// address (0, 0). The conditional-jump test treats both as zero.
func (w Word) IsZero() bool {
	if w.isPtr {
		return w.ptr.Segment == 0 && w.ptr.Offset == 0
	}
	return w.felt.IsZero()
}

func (w Word) String() string {
	if w.isPtr {
		return w.ptr.String()
	}
	return felt.Hex(&w.felt)
}

// Add dispatches on the operand variants: field + field is field addition,
// pointer + field displaces the pointer. Anything else is undefined.
func (w Word) Add(o Word) (Word, error) {
	switch {
	case !w.isPtr && !o.isPtr:
		var sum felt.Felt
		sum.Add(&w.felt, &o.felt)
		return FeltWord(sum), nil
	case w.isPtr && !o.isPtr:
		p, err := w.ptr.AddFelt(&o.felt)
		if err != nil {
			return Word{}, err
		}
		return PtrWord(p), nil
	default:
		return Word{}, fmt.Errorf("%w: %v + %v", ErrTypeMismatch, w, o)
	}
}

// Sub dispatches like Add, and additionally defines pointer - pointer as the
// offset distance within one segment.
func (w Word) Sub(o Word) (Word, error) {
	switch {
	case !w.isPtr && !o.isPtr:
		var diff felt.Felt
		diff.Sub(&w.felt, &o.felt)
		return FeltWord(diff), nil
	case w.isPtr && !o.isPtr:
		p, err := w.ptr.SubFelt(&o.felt)
		if err != nil {
			return Word{}, err
		}
		return PtrWord(p), nil
	case w.isPtr && o.isPtr:
		d, err := w.ptr.Sub(o.ptr)
		if err != nil {
			return Word{}, err
		}
		return FeltWord(d), nil
	default:
		return Word{}, fmt.Errorf("%w: %v - %v", ErrTypeMismatch, w, o)
	}
}

// Mul is defined for field elements only.
func (w Word) Mul(o Word) (Word, error) {
	if w.isPtr || o.isPtr {
		return Word{}, fmt.Errorf("%w: %v * %v", ErrTypeMismatch, w, o)
	}
	var prod felt.Felt
	prod.Mul(&w.felt, &o.felt)
	return FeltWord(prod), nil
}

// Div is defined for field elements only, and fails on a zero divisor.
func (w Word) Div(o Word) (Word, error) {
	if w.isPtr || o.isPtr {
		return Word{}, fmt.Errorf("%w: %v / %v", ErrTypeMismatch, w, o)
	}
	q, err := felt.Div(&w.felt, &o.felt)
	if err != nil {
		return Word{}, err
	}
	return FeltWord(q), nil
}

func (w Word) MarshalJSON() ([]byte, error) {
	if w.isPtr {
		return json.Marshal(w.ptr)
	}
	return json.Marshal(felt.Hex(&w.felt))
}

func (w *Word) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f, err := felt.FromHex(s)
		if err != nil {
			return err
		}
		*w = FeltWord(f)
		return nil
	}
	var p Relocatable
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*w = PtrWord(p)
	return nil
}
