package cache

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry is returned when a geometry cannot describe a cache.
var ErrInvalidGeometry = errors.New("invalid cache geometry")

// MaxLines bounds the number of lines a single cache may allocate.
const MaxLines = 1 << 24

// maxSetBits is the largest set count that fits within MaxLines.
const maxSetBits = 24

// addrBits is the width of a simulated memory address.
const addrBits = 64

// Geometry describes the shape of a set-associative cache.
type Geometry struct {
	// SetBits is the number of set-index bits (s). The cache has 2^s sets.
	SetBits int `json:"set_bits"`
	// Ways is the associativity (E), the number of lines per set.
	Ways int `json:"ways"`
	// BlockBits is the number of block-offset bits (b). Blocks are 2^b bytes.
	BlockBits int `json:"block_bits"`
}

// NumSets returns S = 2^s.
func (g Geometry) NumSets() int {
	return 1 << g.SetBits
}

// BlockSize returns B = 2^b in bytes.
func (g Geometry) BlockSize() int {
	return 1 << g.BlockBits
}

// NumLines returns the total number of lines, S * E.
func (g Geometry) NumLines() int {
	return g.NumSets() * g.Ways
}

// Validate checks that the geometry can be simulated.
func (g Geometry) Validate() error {
	if g.SetBits <= 0 {
		return fmt.Errorf("%w: set bits must be > 0, got %d", ErrInvalidGeometry, g.SetBits)
	}
	if g.Ways <= 0 {
		return fmt.Errorf("%w: associativity must be > 0, got %d", ErrInvalidGeometry, g.Ways)
	}
	if g.BlockBits <= 0 {
		return fmt.Errorf("%w: block bits must be > 0, got %d", ErrInvalidGeometry, g.BlockBits)
	}
	if g.SetBits+g.BlockBits >= addrBits {
		return fmt.Errorf("%w: set bits + block bits must be < %d, got %d",
			ErrInvalidGeometry, addrBits, g.SetBits+g.BlockBits)
	}
	if g.SetBits > maxSetBits || g.Ways > MaxLines>>g.SetBits {
		return fmt.Errorf("%w: %d sets of %d lines exceeds %d lines",
			ErrInvalidGeometry, uint64(1)<<g.SetBits, g.Ways, MaxLines)
	}
	return nil
}

// Decode splits an address into its tag and set index.
//
// The block offset occupies the low BlockBits bits, the set index the next
// SetBits bits and the tag everything above.
func (g Geometry) Decode(addr uint64) (tag, set uint64) {
	tag = addr >> uint(g.SetBits+g.BlockBits)
	set = (addr >> uint(g.BlockBits)) & (uint64(1)<<uint(g.SetBits) - 1)
	return tag, set
}

// Offset returns the byte offset of addr within its block.
func (g Geometry) Offset(addr uint64) uint64 {
	return addr & (uint64(1)<<uint(g.BlockBits) - 1)
}

// BlockAddr returns addr with its block offset cleared.
func (g Geometry) BlockAddr(addr uint64) uint64 {
	return addr &^ (uint64(1)<<uint(g.BlockBits) - 1)
}

func (g Geometry) String() string {
	return fmt.Sprintf("s=%d E=%d b=%d", g.SetBits, g.Ways, g.BlockBits)
}
