package noff

import (
	"fmt"
	"io"
)

// An Executable is an opened NOFF file.
type Executable struct {
	Header Header
	r      io.ReaderAt
}

// Open reads the header of a NOFF file.
func Open(r io.ReaderAt) (*Executable, error) {
	h, _, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	return &Executable{Header: h, r: r}, nil
}

// ReadAt reads raw bytes of the file.
func (e *Executable) ReadAt(p []byte, off int64) (int, error) {
	return e.r.ReadAt(p, off)
}

// LoadPage copies the file-backed bytes of the page starting at pageAddr
// into frame, whose length is the page size. Bytes that no file-backed
// segment covers are left untouched. It returns the number of bytes copied.
func (e *Executable) LoadPage(frame []byte, pageAddr uint64) (int, error) {
	start := pageAddr
	end := pageAddr + uint64(len(frame))
	copied := 0

	for _, s := range []Segment{e.Header.Code, e.Header.InitData} {
		lo, hi, ok := s.Overlap(start, end)
		if !ok {
			continue
		}

		fileOff := int64(s.InFileAddr) + int64(lo-uint64(s.VirtualAddr))
		dst := frame[lo-start : hi-start]

		n, err := e.r.ReadAt(dst, fileOff)
		copied += n

		if err != nil && !(err == io.EOF && n == len(dst)) {
			return copied, fmt.Errorf(
				"noff: reading %d bytes at offset %d: %w",
				len(dst), fileOff, err)
		}
	}

	return copied, nil
}

// ReadOnlyPage tells if the page starting at pageAddr lies wholly inside the
// code segment.
func (e *Executable) ReadOnlyPage(pageAddr uint64, pageSize int) bool {
	code := e.Header.Code
	if code.Size == 0 {
		return false
	}

	return pageAddr >= uint64(code.VirtualAddr) &&
		pageAddr+uint64(pageSize) <= code.End()
}
