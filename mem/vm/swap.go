package vm

// A SwapEntry is the saved content of an evicted dirty page.
type SwapEntry struct {
	Owner   Owner
	VPN     uint64
	Flags   PageFlags
	Content []byte
}

type swapKey struct {
	owner Owner
	vpn   uint64
}

// A SwapStore keeps evicted dirty pages until they are faulted back in. It has
// no capacity limit.
type SwapStore struct {
	entries map[swapKey]*SwapEntry
}

// NewSwapStore creates an empty SwapStore.
func NewSwapStore() *SwapStore {
	return &SwapStore{
		entries: make(map[swapKey]*SwapEntry),
	}
}

// Put stores an entry, replacing any older copy of the same page.
func (s *SwapStore) Put(e *SwapEntry) {
	s.entries[swapKey{owner: e.Owner, vpn: e.VPN}] = e
}

// Take removes and returns the saved copy of a page.
func (s *SwapStore) Take(owner Owner, vpn uint64) (*SwapEntry, bool) {
	key := swapKey{owner: owner, vpn: vpn}

	e, found := s.entries[key]
	if !found {
		return nil, false
	}

	delete(s.entries, key)

	return e, true
}

// Contains tells if a page has a saved copy.
func (s *SwapStore) Contains(owner Owner, vpn uint64) bool {
	_, found := s.entries[swapKey{owner: owner, vpn: vpn}]
	return found
}

// Len returns the number of saved pages.
func (s *SwapStore) Len() int {
	return len(s.entries)
}
