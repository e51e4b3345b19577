// Package report prints and persists the final statistics of a run.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sarchlab/csim/cache"
)

// DefaultResultsPath is where the results sidecar is written by default.
const DefaultResultsPath = ".csim_results"

// Summary holds the numbers reported at the end of a run.
type Summary struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// FromStats builds a Summary from cache statistics.
func FromStats(stats cache.Statistics) Summary {
	return Summary{
		Hits:      stats.Hits,
		Misses:    stats.Misses,
		Evictions: stats.Evictions,
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("hits:%d misses:%d evictions:%d", s.Hits, s.Misses, s.Evictions)
}

// Print writes the summary line to w.
func (s Summary) Print(w io.Writer) error {
	_, err := fmt.Fprintln(w, s.String())
	return err
}

// WriteResults writes the three counters, space separated, to path.
func (s Summary) WriteResults(path string) error {
	data := fmt.Sprintf("%d %d %d\n", s.Hits, s.Misses, s.Evictions)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}

	return nil
}

// ReadResults parses a results file written by WriteResults.
func ReadResults(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read results file: %w", err)
	}

	var s Summary
	_, err = fmt.Sscanf(strings.TrimSpace(string(data)), "%d %d %d", &s.Hits, &s.Misses, &s.Evictions)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to parse results file %s: %w", path, err)
	}

	return s, nil
}
