package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Reference is a cache model built on the Akita cache directory.
//
// It keeps recency in the directory's LRU queues instead of a logical clock
// and serves as an independent implementation to check Cache against.
type Reference struct {
	geometry Geometry

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	stats Statistics
}

// NewReference creates an Akita-backed cache with every block invalid.
func NewReference(g Geometry) (*Reference, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	return &Reference{
		geometry: g,
		directory: akitacache.NewDirectory(
			g.NumSets(),
			g.Ways,
			g.BlockSize(),
			akitacache.NewLRUVictimFinder(),
		),
	}, nil
}

// Geometry returns the shape of the cache.
func (r *Reference) Geometry() Geometry {
	return r.geometry
}

// Stats returns cache statistics.
func (r *Reference) Stats() Statistics {
	return r.stats
}

// Reset invalidates all blocks and clears statistics.
func (r *Reference) Reset() {
	r.directory.Reset()
	r.stats = Statistics{}
}

// Access looks up addr in the directory and fills the block on a miss.
func (r *Reference) Access(addr uint64) Outcome {
	// The directory tags blocks by their aligned address.
	blockAddr := r.geometry.BlockAddr(addr)

	block := r.directory.Lookup(0, blockAddr) // PID=0, single address space
	if block != nil && block.IsValid {
		r.directory.Visit(block) // Update LRU
		r.stats.count(Hit)
		return Hit
	}

	victim := r.directory.FindVictim(blockAddr)
	if victim == nil {
		// The LRU victim finder always returns a block for a non-empty set.
		panic("akita directory returned no victim")
	}

	outcome := ColdMiss
	if victim.IsValid {
		outcome = EvictionMiss
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	r.directory.Visit(victim)

	r.stats.count(outcome)

	return outcome
}

// ValidBlocks returns the number of valid blocks held by the directory.
func (r *Reference) ValidBlocks() int {
	n := 0
	for _, set := range r.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid {
				n++
			}
		}
	}
	return n
}
