package vm

import (
	"fmt"
	"strings"
)

// Layout selects the translation structure used by the whole machine.
type Layout int

// The supported layouts.
const (
	// FlatLayout gives every address space its own table indexed by virtual
	// page number.
	FlatLayout Layout = iota

	// InvertedLayout shares one table indexed by physical frame among all
	// address spaces.
	InvertedLayout
)

func (l Layout) String() string {
	switch l {
	case FlatLayout:
		return "flat"
	case InvertedLayout:
		return "inverted"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout converts a layout name into a Layout.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(s) {
	case "flat":
		return FlatLayout, nil
	case "inverted":
		return InvertedLayout, nil
	default:
		return 0, fmt.Errorf("unknown page table layout %q", s)
	}
}
