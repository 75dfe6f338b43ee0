package databin

import "github.com/dolthub/swiss"

// OccurrenceMap is a parse-time-only, write-once/read-many mapping from an
// absolute byte position to the index of the resource stored there
// (GLOSSARY "Occurrence map"). It backs the string pool's, texture-page
// items', variables', and functions' position→index lookups (spec.md
// §4.2, §4.6, §9 "Global occurrence maps... are conceptually reader-scoped
// scratch state").
//
// Built on github.com/dolthub/swiss (an open-addressing hash map) rather
// than a plain Go map: occurrence maps are populated once per chunk parse
// with a known-ish final size and then probed at high volume while parsing
// every subsequent chunk, which is exactly swiss's sweet spot relative to
// Go's built-in map (grounded on mna-nenuphar, whose lang/machine.Map wraps
// the same library for its own high-churn lookup table).
type OccurrenceMap struct {
	m *swiss.Map[uint32, int]
}

// NewOccurrenceMap creates an OccurrenceMap sized for sizeHint entries.
func NewOccurrenceMap(sizeHint int) *OccurrenceMap {
	if sizeHint < 1 {
		sizeHint = 1
	}
	return &OccurrenceMap{m: swiss.NewMap[uint32, int](uint32(sizeHint))}
}

// Put records that byte offset pos holds the resource at index idx.
func (o *OccurrenceMap) Put(pos uint32, idx int) { o.m.Put(pos, idx) }

// Lookup returns the index recorded at pos, if any.
func (o *OccurrenceMap) Lookup(pos uint32) (int, bool) { return o.m.Get(pos) }

// Len returns the number of recorded entries.
func (o *OccurrenceMap) Len() int { return o.m.Count() }
