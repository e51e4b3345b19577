// Package trace parses Valgrind-style memory access traces.
//
// Each line of a trace holds one record of the form
//
//	<op> <hex-address>,<size>
//
// where op is I (instruction fetch), L (load), S (store) or M (modify, a load
// followed by a store to the same address). Data records are conventionally
// indented by one space.
package trace

import (
	"fmt"
	"strconv"
	"strings"
)

// Op is the kind of a trace record.
type Op byte

const (
	// Instruction is an instruction fetch. It never reaches the cache.
	Instruction Op = 'I'
	// Load reads memory once.
	Load Op = 'L'
	// Store writes memory once.
	Store Op = 'S'
	// Modify reads and then writes the same address.
	Modify Op = 'M'
)

// Accesses returns the number of data cache accesses the op performs.
func (o Op) Accesses() int {
	switch o {
	case Load, Store:
		return 1
	case Modify:
		return 2
	default:
		return 0
	}
}

// IsData reports whether the op touches the data cache.
func (o Op) IsData() bool {
	return o.Accesses() > 0
}

func (o Op) String() string {
	return string(rune(o))
}

// Record is one parsed trace line.
type Record struct {
	Op      Op
	Address uint64
	// Size is the access width in bytes. The simulator does not use it.
	Size uint32
}

// String renders the record the way it appears in a trace, with a lowercase
// hex address.
func (r Record) String() string {
	return fmt.Sprintf("%c %x,%d", r.Op, r.Address, r.Size)
}

// ParseLine parses a single trace line. It reports false for blank lines,
// unknown ops and malformed fields; such lines are meant to be skipped.
func ParseLine(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if len(line) < 2 {
		return Record{}, false
	}

	op := Op(line[0])
	switch op {
	case Instruction, Load, Store, Modify:
	default:
		return Record{}, false
	}

	if line[1] != ' ' && line[1] != '\t' {
		return Record{}, false
	}

	addrField, sizeField, hasSize := strings.Cut(strings.TrimSpace(line[2:]), ",")
	addrField = strings.TrimPrefix(strings.TrimPrefix(addrField, "0x"), "0X")

	addr, err := strconv.ParseUint(addrField, 16, 64)
	if err != nil {
		return Record{}, false
	}

	rec := Record{Op: op, Address: addr}
	if hasSize {
		size, err := strconv.ParseUint(strings.TrimSpace(sizeField), 10, 32)
		if err != nil {
			return Record{}, false
		}
		rec.Size = uint32(size)
	}

	return rec, true
}
