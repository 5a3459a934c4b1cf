package synctable

import (
	"fmt"
	"math"
	"strings"
)

// Stats returns statistics for the Table. Just like other table
// methods, this one is thread-safe. Yet it's an O(N) operation,
// so it should be used only for diagnostics or debugging purposes.
func (t *Table[K, V]) Stats() *TableStats {
	defer t.lk.unlock(t.lk.lock())
	t.lazyInit()
	stats := &TableStats{
		Capacity:   len(t.buckets),
		Size:       t.count,
		Threshold:  t.threshold,
		LoadFactor: t.loadFactor,
		ModCount:   t.modCount,
		Rehashes:   t.rehashes,
		ArenaSlots: len(t.arena.slots),
		MinChain:   math.MaxInt,
	}
	for i := range t.buckets {
		n := 0
		for idx := t.buckets[i]; idx != nilIndex; idx = t.arena.at(idx).next {
			n++
		}
		if n == 0 {
			stats.EmptyBuckets++
		}
		stats.MinChain = min(stats.MinChain, n)
		stats.MaxChain = max(stats.MaxChain, n)
	}
	if used := stats.Capacity - stats.EmptyBuckets; used > 0 {
		stats.AvgChain = float64(stats.Size) / float64(used)
	}
	return stats
}

// TableStats is Table statistics.
//
// Warning: table statistics are intended to be used for diagnostic
// purposes, not for production code. This means that breaking changes
// may be introduced into this struct even between minor releases.
type TableStats struct {
	// Capacity is the number of buckets.
	Capacity int
	// Size is the number of entries.
	Size int
	// Threshold is the size at which the next insert grows the table.
	Threshold int
	// LoadFactor is the configured load factor.
	LoadFactor float32
	// ModCount is the number of structural modifications so far.
	ModCount uint64
	// Rehashes is the number of times the table grew.
	Rehashes uint32
	// ArenaSlots is the number of entry slots allocated, live or free.
	ArenaSlots int
	// EmptyBuckets is the number of buckets with no chain.
	EmptyBuckets int
	// MinChain and MaxChain are the shortest and longest chain lengths.
	MinChain int
	MaxChain int
	// AvgChain is the mean length of the non-empty chains.
	AvgChain float64
}

// ToString returns string representation of table stats.
func (s *TableStats) ToString() string {
	var sb strings.Builder
	sb.WriteString("TableStats{\n")
	sb.WriteString(fmt.Sprintf("Capacity:     %d\n", s.Capacity))
	sb.WriteString(fmt.Sprintf("Size:         %d\n", s.Size))
	sb.WriteString(fmt.Sprintf("Threshold:    %d\n", s.Threshold))
	sb.WriteString(fmt.Sprintf("LoadFactor:   %g\n", s.LoadFactor))
	sb.WriteString(fmt.Sprintf("ModCount:     %d\n", s.ModCount))
	sb.WriteString(fmt.Sprintf("Rehashes:     %d\n", s.Rehashes))
	sb.WriteString(fmt.Sprintf("ArenaSlots:   %d\n", s.ArenaSlots))
	sb.WriteString(fmt.Sprintf("EmptyBuckets: %d\n", s.EmptyBuckets))
	sb.WriteString(fmt.Sprintf("MinChain:     %d\n", s.MinChain))
	sb.WriteString(fmt.Sprintf("MaxChain:     %d\n", s.MaxChain))
	sb.WriteString(fmt.Sprintf("AvgChain:     %.2f\n", s.AvgChain))
	sb.WriteString("}\n")
	return sb.String()
}
