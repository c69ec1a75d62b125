package tlb

import (
	"fmt"
	"strings"

	"github.com/sarchlab/nachosim/mem/vm/tlb/internal"
)

// Policy selects how a full TLB picks the slot to replace.
type Policy int

// The supported replacement policies.
const (
	FIFO Policy = iota
	LRU
)

func (p Policy) String() string {
	switch p {
	case FIFO:
		return "fifo"
	case LRU:
		return "lru"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a policy name into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "fifo":
		return FIFO, nil
	case "lru":
		return LRU, nil
	default:
		return 0, fmt.Errorf("unknown TLB replacement policy %q", s)
	}
}

func (p Policy) victimFinder() internal.VictimFinder {
	switch p {
	case FIFO:
		return internal.NewFIFOVictimFinder()
	case LRU:
		return internal.NewLRUVictimFinder()
	default:
		panic(fmt.Sprintf("unknown TLB replacement policy %d", int(p)))
	}
}
