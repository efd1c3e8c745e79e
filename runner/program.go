// Package runner loads compiled programs and drives the machine from boot to
// the final pc.
package runner

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/cairovm/cairovm/felt"
)

var (
	ErrPrimeMismatch = errors.New("program prime does not match the field modulus")
	ErrNoProgramData = errors.New("program has no data")
	ErrBadEntrypoint = errors.New("entrypoint is outside the program data")
)

// Program is the compiled-program input format: the field prime it was
// compiled for, the flat list of memory words, and the offset of the entry
// point within them.
type Program struct {
	Prime      string   `json:"prime"`
	Data       []string `json:"data"`
	Entrypoint uint64   `json:"main"`
}

// Validate checks the prime against the machine's field and the entrypoint
// against the data bounds before any word is parsed.
func (p *Program) Validate() error {
	prime, ok := new(big.Int).SetString(p.Prime, 0)
	if !ok {
		return fmt.Errorf("%w: cannot parse %q", ErrPrimeMismatch, p.Prime)
	}
	if prime.Cmp(felt.Modulus()) != 0 {
		return fmt.Errorf("%w: %#x", ErrPrimeMismatch, prime)
	}
	if len(p.Data) == 0 {
		return ErrNoProgramData
	}
	if p.Entrypoint >= uint64(len(p.Data)) {
		return fmt.Errorf("%w: main %d with %d words", ErrBadEntrypoint, p.Entrypoint, len(p.Data))
	}
	return nil
}

// Words parses the program data into field elements.
func (p *Program) Words() ([]felt.Felt, error) {
	words := make([]felt.Felt, len(p.Data))
	for i, s := range p.Data {
		f, err := felt.FromHex(s)
		if err != nil {
			return nil, fmt.Errorf("program word %d: %w", i, err)
		}
		words[i] = f
	}
	return words, nil
}
