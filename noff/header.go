// Package noff reads and writes executables in the NOFF format: a fixed
// header with a magic number and three segment descriptors, followed by the
// contents of the code and initialized data segments.
package noff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic identifies a NOFF file.
const Magic uint32 = 0xbadfad

// HeaderSize is the size of the encoded header in bytes.
const HeaderSize = 40

// ErrBadMagic is returned for files that are not NOFF executables in either
// byte order.
var ErrBadMagic = errors.New("noff: bad magic number")

// A Segment describes a contiguous range of the address space and where its
// content lives in the file.
type Segment struct {
	VirtualAddr uint32
	InFileAddr  uint32
	Size        uint32
}

// End returns the first virtual address past the segment.
func (s Segment) End() uint64 {
	return uint64(s.VirtualAddr) + uint64(s.Size)
}

// Overlap returns the part of [start, end) that the segment covers.
func (s Segment) Overlap(start, end uint64) (uint64, uint64, bool) {
	if s.Size == 0 {
		return 0, 0, false
	}

	lo := max(start, uint64(s.VirtualAddr))
	hi := min(end, s.End())

	if lo >= hi {
		return 0, 0, false
	}

	return lo, hi, true
}

// Header is the NOFF file header.
type Header struct {
	Magic      uint32
	Code       Segment
	InitData   Segment
	UninitData Segment
}

// Size returns the number of bytes the segments take in the address space.
func (h Header) Size() uint64 {
	return uint64(h.Code.Size) + uint64(h.InitData.Size) +
		uint64(h.UninitData.Size)
}

func (h *Header) segments() []*Segment {
	return []*Segment{&h.Code, &h.InitData, &h.UninitData}
}

// Encode serializes the header in the given byte order.
func (h Header) Encode(order binary.ByteOrder) []byte {
	buf := make([]byte, HeaderSize)

	order.PutUint32(buf[0:], h.Magic)

	off := 4
	for _, s := range h.segments() {
		order.PutUint32(buf[off:], s.VirtualAddr)
		order.PutUint32(buf[off+4:], s.InFileAddr)
		order.PutUint32(buf[off+8:], s.Size)
		off += 12
	}

	return buf
}

func decodeHeader(buf []byte, order binary.ByteOrder) Header {
	h := Header{Magic: order.Uint32(buf[0:])}

	off := 4
	for _, s := range h.segments() {
		s.VirtualAddr = order.Uint32(buf[off:])
		s.InFileAddr = order.Uint32(buf[off+4:])
		s.Size = order.Uint32(buf[off+8:])
		off += 12
	}

	return h
}

// ReadHeader reads the header at the start of r. A header whose magic number
// only matches after swapping bytes is swapped field by field.
func ReadHeader(r io.ReaderAt) (Header, binary.ByteOrder, error) {
	buf := make([]byte, HeaderSize)

	if _, err := r.ReadAt(buf, 0); err != nil {
		return Header{}, nil, fmt.Errorf("noff: reading header: %w", err)
	}

	for _, order := range []binary.ByteOrder{
		binary.LittleEndian,
		binary.BigEndian,
	} {
		h := decodeHeader(buf, order)
		if h.Magic == Magic {
			return h, order, nil
		}
	}

	return Header{}, nil, ErrBadMagic
}
