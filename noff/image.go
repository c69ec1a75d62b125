package noff

import (
	"encoding/binary"
	"io"
)

// An Image is the content of an executable to be written in NOFF format.
type Image struct {
	Code     []byte
	Data     []byte
	BSSSize  uint32
	CodeBase uint32
}

// Header lays the segments out back to back starting at the code base. The
// code follows the header in the file and the data follows the code.
func (img Image) Header() Header {
	codeSize := uint32(len(img.Code))
	dataSize := uint32(len(img.Data))

	return Header{
		Magic: Magic,
		Code: Segment{
			VirtualAddr: img.CodeBase,
			InFileAddr:  HeaderSize,
			Size:        codeSize,
		},
		InitData: Segment{
			VirtualAddr: img.CodeBase + codeSize,
			InFileAddr:  HeaderSize + codeSize,
			Size:        dataSize,
		},
		UninitData: Segment{
			VirtualAddr: img.CodeBase + codeSize + dataSize,
			Size:        img.BSSSize,
		},
	}
}

// Encode serializes the image in the given byte order. Only the header is
// affected by the byte order; segment contents are copied as they are.
func (img Image) Encode(order binary.ByteOrder) []byte {
	buf := img.Header().Encode(order)
	buf = append(buf, img.Code...)
	buf = append(buf, img.Data...)

	return buf
}

// WriteTo writes the image in little-endian order.
func (img Image) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(img.Encode(binary.LittleEndian))

	return int64(n), err
}
