package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// maxLineLength bounds the length of a trace line. Longer lines are
// discarded and counted as skipped.
const maxLineLength = 1 << 16

// Reader yields the data records of a trace in order.
type Reader struct {
	reader  *bufio.Reader
	line    int
	skipped int
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{reader: bufio.NewReaderSize(r, maxLineLength)}
}

// readLine returns the next line without its terminator. A line that does
// not fit in the buffer is consumed to its end and reported as too long.
func (r *Reader) readLine() (line string, tooLong bool, err error) {
	chunk, isPrefix, err := r.reader.ReadLine()
	if err != nil {
		return "", false, err
	}
	if !isPrefix {
		return string(chunk), false, nil
	}

	for isPrefix {
		_, isPrefix, err = r.reader.ReadLine()
		if err == io.EOF {
			return "", true, nil
		}
		if err != nil {
			return "", true, err
		}
	}

	return "", true, nil
}

// Next returns the next load, store or modify record. Instruction fetches,
// lines that do not parse and overlong lines are skipped. At the end of the
// trace Next returns io.EOF.
func (r *Reader) Next() (Record, error) {
	for {
		text, tooLong, err := r.readLine()
		if err == io.EOF {
			return Record{}, io.EOF
		}
		if err != nil {
			return Record{}, fmt.Errorf("failed to read trace line %d: %w", r.line+1, err)
		}
		r.line++

		if tooLong {
			r.skipped++
			continue
		}

		rec, ok := ParseLine(text)
		if !ok {
			r.skipped++
			continue
		}
		if !rec.Op.IsData() {
			continue
		}

		return rec, nil
	}
}

// Line returns the number of lines consumed so far.
func (r *Reader) Line() int {
	return r.line
}

// Skipped returns the number of lines that did not parse.
func (r *Reader) Skipped() int {
	return r.skipped
}

// File is a trace backed by an open file.
type File struct {
	*Reader

	path string
	file *os.File
}

// Open opens the trace file at path. The caller must Close it.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &File{
		Reader: NewReader(f),
		path:   path,
		file:   f,
	}, nil
}

// Path returns the path the trace was opened from.
func (f *File) Path() string {
	return f.path
}

// Close closes the underlying file.
func (f *File) Close() error {
	return f.file.Close()
}

// LoadFile reads every data record of the trace at path.
func LoadFile(path string) ([]Record, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var records []Record
	for {
		rec, err := f.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}
