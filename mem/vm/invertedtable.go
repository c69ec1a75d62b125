package vm

import (
	"encoding/binary"
	"hash/fnv"
	"log"
)

const noFrame = -1

// An InvertedTable is the machine-wide page table. It holds one entry per
// physical frame and finds the frame of a virtual page through a fixed number
// of hash buckets whose entries are chained by frame index.
type InvertedTable struct {
	entries []TranslationEntry
	next    []int
	buckets []int
}

// NewInvertedTable creates a table for numFrames frames and numBuckets hash
// buckets.
func NewInvertedTable(numFrames, numBuckets int) *InvertedTable {
	if numBuckets <= 0 {
		log.Panic("an inverted table needs at least one bucket")
	}

	t := &InvertedTable{
		entries: make([]TranslationEntry, numFrames),
		next:    make([]int, numFrames),
		buckets: make([]int, numBuckets),
	}

	for i := range t.entries {
		t.entries[i] = TranslationEntry{PhysicalPage: i, Owner: NoOwner}
		t.next[i] = noFrame
	}

	for i := range t.buckets {
		t.buckets[i] = noFrame
	}

	return t
}

// NumFrames returns the number of frames covered by the table.
func (t *InvertedTable) NumFrames() int {
	return len(t.entries)
}

// Entry returns the entry stored for a frame.
func (t *InvertedTable) Entry(frame int) TranslationEntry {
	t.frameMustBeInRange(frame)

	return t.entries[frame]
}

func (t *InvertedTable) bucketOf(vpn uint64) int {
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], vpn)

	h := fnv.New32a()
	_, _ = h.Write(buf[:])

	return int(h.Sum32() % uint32(len(t.buckets)))
}

// Lookup walks the chain of the page's bucket for a valid entry of the owner.
func (t *InvertedTable) Lookup(owner Owner, vpn uint64) (TranslationEntry, bool) {
	for f := t.buckets[t.bucketOf(vpn)]; f != noFrame; f = t.next[f] {
		e := t.entries[f]
		if e.Valid && e.Owner == owner && e.VirtualPage == vpn {
			return e, true
		}
	}

	return TranslationEntry{}, false
}

// Install stores the entry in the slot of its frame and links the frame into
// the bucket of its virtual page. The frame must not be in use.
func (t *InvertedTable) Install(entry TranslationEntry) {
	frame := entry.PhysicalPage
	t.frameMustBeInRange(frame)

	if t.entries[frame].Valid {
		log.Panicf("frame %d is still mapped to %v", frame, t.entries[frame])
	}

	entry.Valid = true
	t.entries[frame] = entry

	b := t.bucketOf(entry.VirtualPage)
	t.next[frame] = t.buckets[b]
	t.buckets[b] = frame
}

// WriteBack updates the frame slot with the state of a cached entry. The chain
// link of the frame is kept.
func (t *InvertedTable) WriteBack(entry TranslationEntry) {
	frame := entry.PhysicalPage
	if frame < 0 || frame >= len(t.entries) {
		return
	}

	current := &t.entries[frame]
	if !current.Valid ||
		current.Owner != entry.Owner ||
		current.VirtualPage != entry.VirtualPage {
		return
	}

	*current = entry
	current.Valid = true
}

// Evict splices the frame out of its hash chain and invalidates it. It returns
// the entry that occupied the frame; the bool is false if the frame was free.
func (t *InvertedTable) Evict(frame int) (TranslationEntry, bool) {
	t.frameMustBeInRange(frame)

	old := t.entries[frame]
	if !old.Valid {
		return old, false
	}

	b := t.bucketOf(old.VirtualPage)
	if t.buckets[b] == frame {
		t.buckets[b] = t.next[frame]
	} else {
		prev := t.buckets[b]
		for prev != noFrame && t.next[prev] != frame {
			prev = t.next[prev]
		}

		if prev == noFrame {
			log.Panicf("frame %d is not in the chain of bucket %d", frame, b)
		}

		t.next[prev] = t.next[frame]
	}

	t.next[frame] = noFrame
	t.entries[frame] = TranslationEntry{PhysicalPage: frame, Owner: NoOwner}

	return old, true
}

// ChainLength returns the number of frames linked in the bucket of a virtual
// page.
func (t *InvertedTable) ChainLength(vpn uint64) int {
	n := 0
	for f := t.buckets[t.bucketOf(vpn)]; f != noFrame; f = t.next[f] {
		n++
	}

	return n
}

func (t *InvertedTable) frameMustBeInRange(frame int) {
	if frame < 0 || frame >= len(t.entries) {
		log.Panicf("frame %d does not exist, the table has %d frames",
			frame, len(t.entries))
	}
}
