package vm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SwapStore", func() {
	var store *SwapStore

	BeforeEach(func() {
		store = NewSwapStore()
	})

	It("should hand back a stored page once", func() {
		store.Put(&SwapEntry{
			Owner: 1, VPN: 7, Flags: FlagDirty, Content: []byte{1, 2, 3},
		})

		Expect(store.Contains(1, 7)).To(BeTrue())

		e, found := store.Take(1, 7)
		Expect(found).To(BeTrue())
		Expect(e.Content).To(Equal([]byte{1, 2, 3}))
		Expect(e.Flags).To(Equal(FlagDirty))

		_, found = store.Take(1, 7)
		Expect(found).To(BeFalse())
		Expect(store.Len()).To(BeZero())
	})

	It("should key pages by owner", func() {
		store.Put(&SwapEntry{Owner: 1, VPN: 7})

		_, found := store.Take(2, 7)

		Expect(found).To(BeFalse())
		Expect(store.Len()).To(Equal(1))
	})

	It("should replace older copies", func() {
		store.Put(&SwapEntry{Owner: 1, VPN: 7, Content: []byte{1}})
		store.Put(&SwapEntry{Owner: 1, VPN: 7, Content: []byte{2}})

		e, _ := store.Take(1, 7)

		Expect(store.Len()).To(BeZero())
		Expect(e.Content).To(Equal([]byte{2}))
	})
})

var _ = Describe("TranslationEntry flags", func() {
	It("should round trip the status bits", func() {
		e := TranslationEntry{ReadOnly: true, Dirty: true}

		f := e.Flags()
		var restored TranslationEntry
		restored.SetFlags(f)

		Expect(f).To(Equal(FlagReadOnly | FlagDirty))
		Expect(restored.ReadOnly).To(BeTrue())
		Expect(restored.Dirty).To(BeTrue())
		Expect(restored.Use).To(BeFalse())
	})
})
