package replay

import (
	"fmt"
	"io"
	"strings"
)

// VerbosePrinter prints every replayed record followed by its outcomes,
// e.g. "M 20,1 miss eviction hit".
type VerbosePrinter struct {
	w   io.Writer
	err error
}

// NewVerbosePrinter creates a VerbosePrinter writing to w.
func NewVerbosePrinter(w io.Writer) *VerbosePrinter {
	return &VerbosePrinter{w: w}
}

// Observe prints one event. After the first write error, further events are
// dropped.
func (p *VerbosePrinter) Observe(event Event) {
	if p.err != nil {
		return
	}

	var b strings.Builder
	b.WriteString(event.Record.String())
	for _, o := range event.Outcomes {
		b.WriteByte(' ')
		b.WriteString(o.String())
	}
	b.WriteByte('\n')

	if _, err := io.WriteString(p.w, b.String()); err != nil {
		p.err = fmt.Errorf("failed to print trace event: %w", err)
	}
}

// Err returns the first write error, if any.
func (p *VerbosePrinter) Err() error {
	return p.err
}
