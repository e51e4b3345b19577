// Package cache models a set-associative cache with LRU replacement.
//
// Only the tag store is modeled. Data contents, timing and write policies are
// not simulated; every access is classified as a hit, a cold miss or a miss
// that evicts a valid line.
package cache

import "fmt"

// Outcome is the classification of a single access.
type Outcome int

const (
	// Hit means the block was present in its set.
	Hit Outcome = iota
	// ColdMiss means the block was absent and an empty line received it.
	ColdMiss
	// EvictionMiss means the block was absent and the set was full, so the
	// least recently used line was replaced.
	EvictionMiss
)

// IsHit reports whether the access hit.
func (o Outcome) IsHit() bool { return o == Hit }

// IsMiss reports whether the access missed.
func (o Outcome) IsMiss() bool { return o != Hit }

// Evicted reports whether the access replaced a valid line.
func (o Outcome) Evicted() bool { return o == EvictionMiss }

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case ColdMiss:
		return "miss"
	case EvictionMiss:
		return "miss eviction"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Statistics holds the counters of a simulation run.
type Statistics struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Accesses returns the total number of accesses counted.
func (s Statistics) Accesses() uint64 {
	return s.Hits + s.Misses
}

func (s *Statistics) count(o Outcome) {
	switch o {
	case Hit:
		s.Hits++
	case ColdMiss:
		s.Misses++
	case EvictionMiss:
		s.Misses++
		s.Evictions++
	}
}

// Classifier classifies accesses against some cache model.
type Classifier interface {
	// Access performs one access to addr and returns its outcome.
	Access(addr uint64) Outcome
	// Stats returns the counters accumulated so far.
	Stats() Statistics
}

// Line is one slot of a set.
type Line struct {
	Valid   bool
	Tag     uint64
	Recency uint64
}

// InvariantError reports a cache state that Access can never produce. Such
// states are reachable only through Install.
type InvariantError struct {
	Set    uint64
	Slot   int
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("cache invariant violated in set %d slot %d: %s",
		e.Set, e.Slot, e.Reason)
}

// Cache is the tag store of a set-associative cache.
type Cache struct {
	geometry Geometry

	// lines holds every set back to back, indexed by set*Ways + slot.
	lines []Line

	// clock is the last recency value handed out.
	clock uint64

	stats Statistics
}

// New allocates a cache with every line invalid.
func New(g Geometry) (*Cache, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	return &Cache{
		geometry: g,
		lines:    make([]Line, g.NumLines()),
	}, nil
}

// Geometry returns the shape of the cache.
func (c *Cache) Geometry() Geometry {
	return c.geometry
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// Clock returns the most recent recency value used.
func (c *Cache) Clock() uint64 {
	return c.clock
}

// Reset invalidates all lines and clears the clock and statistics.
func (c *Cache) Reset() {
	clear(c.lines)
	c.clock = 0
	c.stats = Statistics{}
}

func (c *Cache) set(index uint64) []Line {
	start := int(index) * c.geometry.Ways
	return c.lines[start : start+c.geometry.Ways]
}

// Lines returns a copy of the lines of one set.
func (c *Cache) Lines(set uint64) []Line {
	lines := make([]Line, c.geometry.Ways)
	copy(lines, c.set(set))
	return lines
}

// Install marks a line valid with the given tag and recency.
func (c *Cache) Install(set uint64, slot int, tag, recency uint64) {
	c.set(set)[slot] = Line{Valid: true, Tag: tag, Recency: recency}
}

// Access looks up addr, updates recency and fills the block on a miss.
//
// The victim is the valid line with the smallest recency. Should several
// lines share it, which Access alone never produces, the lowest slot is
// taken; Check reports such states.
func (c *Cache) Access(addr uint64) Outcome {
	tag, setIndex := c.geometry.Decode(addr)
	lines := c.set(setIndex)

	c.clock++
	now := c.clock

	hit, empty, victim := -1, -1, -1
	for i := range lines {
		line := &lines[i]
		if !line.Valid {
			if empty < 0 {
				empty = i
			}
			continue
		}

		if line.Tag == tag && hit < 0 {
			hit = i
		}

		if victim < 0 || line.Recency < lines[victim].Recency {
			victim = i
		}
	}

	var outcome Outcome
	switch {
	case hit >= 0:
		lines[hit].Recency = now
		outcome = Hit
	case empty >= 0:
		c.Install(setIndex, empty, tag, now)
		outcome = ColdMiss
	default:
		c.Install(setIndex, victim, tag, now)
		outcome = EvictionMiss
	}

	c.stats.count(outcome)

	return outcome
}

// Check verifies the state of every set. It returns an *InvariantError for
// the first set holding a duplicate valid tag, two valid lines with the same
// recency, or a recency ahead of the clock.
func (c *Cache) Check() error {
	for set := uint64(0); set < uint64(c.geometry.NumSets()); set++ {
		lines := c.set(set)
		for i, line := range lines {
			if !line.Valid {
				continue
			}
			if line.Recency > c.clock {
				return &InvariantError{Set: set, Slot: i, Reason: "recency ahead of clock"}
			}
			for j := 0; j < i; j++ {
				other := lines[j]
				if !other.Valid {
					continue
				}
				if other.Tag == line.Tag {
					return &InvariantError{Set: set, Slot: i, Reason: "duplicate valid tag"}
				}
				if other.Recency == line.Recency {
					return &InvariantError{Set: set, Slot: i, Reason: "equal recency"}
				}
			}
		}
	}
	return nil
}

// ValidLines returns the number of valid lines across all sets.
func (c *Cache) ValidLines() int {
	n := 0
	for _, line := range c.lines {
		if line.Valid {
			n++
		}
	}
	return n
}
