package databin

import "github.com/modgm/gmdata/gmerr"

// Failsafe thresholds on implied byte size of a list's element count,
// guarding against corrupted counts (spec.md §4.4).
const (
	MaxSimpleListBytes      = 1 << 20 // 1 MB
	MaxShortSimpleListBytes = 10 << 10 // 10 KB
)

// ReadSimpleListCount reads a u32 count and fails with gmerr.Failsafe if
// count*elemSize would exceed maxBytes.
func (r *Reader) ReadSimpleListCount(elemSize int64, maxBytes int64) int {
	count := r.U32()
	if r.err != nil {
		return 0
	}
	if int64(count)*elemSize > maxBytes {
		r.fail(gmerr.Wrap(gmerr.Failsafe, r.chunkName, r.pos-4, "list count"))
		return 0
	}
	return int(count)
}

// WriteListCount writes a u32 element count, the Writer side of
// ReadSimpleListCount / pointer-list counts.
func (w *Writer) WriteListCount(n int) { w.U32(uint32(n)) }

// PointerListOffsets reads a pointer list's count followed by that many u32
// offsets (spec.md §4.4). Elements still need to be read by seeking to each
// offset; this only returns the offsets.
func (r *Reader) PointerListOffsets(maxBytes int64) []uint32 {
	count := r.ReadSimpleListCount(4, maxBytes)
	if r.err != nil {
		return nil
	}
	offs := make([]uint32, count)
	for i := range offs {
		offs[i] = r.Pointer()
		if r.err != nil {
			return nil
		}
	}
	return offs
}

// PointerListWriter holds the placeholder identities of a pointer list's
// offset table, written by BeginPointerList; the elements are then emitted
// in the same pass, each preceded by ResolveElement for its own identity.
type PointerListWriter struct {
	w    *Writer
	ids  []Identity
}

// BeginPointerList writes the list's count and reserves a placeholder slot
// per element, returning a handle whose ResolveElement must be called once, by
// index, as each element is emitted.
func (w *Writer) BeginPointerList(ids []Identity) *PointerListWriter {
	w.WriteListCount(len(ids))
	for _, id := range ids {
		w.Placeholder(id)
	}
	return &PointerListWriter{w: w, ids: ids}
}

// ResolveElement marks the i'th element's identity as resolved at the
// writer's current position, then the caller emits that element's bytes.
func (p *PointerListWriter) ResolveElement(i int) {
	p.w.Resolve(p.ids[i])
}

// AlignedListMisalignment tracks whether an aligned-list chunk has been
// demoted to unaligned mode, inferred the first time a pointer isn't a
// multiple of 8 (spec.md §4.4).
type AlignedListMisalignment struct {
	Misaligned bool
	checked    bool
}

// Observe records one pointer's alignment and demotes Misaligned permanently
// once any pointer fails the check.
func (m *AlignedListMisalignment) Observe(ptr uint32) {
	m.checked = true
	if ptr%8 != 0 {
		m.Misaligned = true
	}
}
