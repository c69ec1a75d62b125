package vm

import (
	"log"

	"github.com/Workiva/go-datastructures/bitarray"
)

// A FrameMap tracks which physical frames are in use.
type FrameMap struct {
	bits      bitarray.BitArray
	numFrames int
	used      int
}

// NewFrameMap creates a map of numFrames free frames.
func NewFrameMap(numFrames int) *FrameMap {
	return &FrameMap{
		bits:      bitarray.NewBitArray(uint64(numFrames)),
		numFrames: numFrames,
	}
}

// NumFrames returns the number of frames the map tracks.
func (m *FrameMap) NumFrames() int {
	return m.numFrames
}

// Find marks the lowest free frame as used and returns it. The bool is false
// if every frame is taken.
func (m *FrameMap) Find() (int, bool) {
	if m.used == m.numFrames {
		return -1, false
	}

	for i := 0; i < m.numFrames; i++ {
		if !m.Test(i) {
			m.Mark(i)
			return i, true
		}
	}

	return -1, false
}

// Test tells if a frame is in use.
func (m *FrameMap) Test(frame int) bool {
	m.frameMustBeInRange(frame)

	set, err := m.bits.GetBit(uint64(frame))
	if err != nil {
		log.Panic(err)
	}

	return set
}

// Mark sets a frame as used.
func (m *FrameMap) Mark(frame int) {
	if m.Test(frame) {
		return
	}

	if err := m.bits.SetBit(uint64(frame)); err != nil {
		log.Panic(err)
	}

	m.used++
}

// Clear returns a frame to the free pool.
func (m *FrameMap) Clear(frame int) {
	if !m.Test(frame) {
		return
	}

	if err := m.bits.ClearBit(uint64(frame)); err != nil {
		log.Panic(err)
	}

	m.used--
}

// NumClear returns the number of free frames.
func (m *FrameMap) NumClear() int {
	return m.numFrames - m.used
}

// UsedFrames lists the frames in use in increasing order.
func (m *FrameMap) UsedFrames() []int {
	nums := m.bits.ToNums()
	frames := make([]int, 0, len(nums))

	for _, n := range nums {
		frames = append(frames, int(n))
	}

	return frames
}

func (m *FrameMap) frameMustBeInRange(frame int) {
	if frame < 0 || frame >= m.numFrames {
		log.Panicf("frame %d does not exist, the machine has %d frames",
			frame, m.numFrames)
	}
}
