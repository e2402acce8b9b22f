package utils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/utils"
)

var _ = Describe("LRU", func() {
	It("stores and retrieves entries", func() {
		cache := utils.NewLRU[string, int](2)
		cache.Put("a", 1)

		v, ok := cache.Get("a")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(1))

		_, ok = cache.Get("b")
		Expect(ok).To(BeFalse())
	})

	It("evicts the coldest entry at capacity", func() {
		cache := utils.NewLRU[string, int](2)
		cache.Put("a", 1)
		cache.Put("b", 2)

		// Touch "a" so "b" becomes the eviction target.
		_, _ = cache.Get("a")
		cache.Put("c", 3)

		_, ok := cache.Get("b")
		Expect(ok).To(BeFalse())

		_, ok = cache.Get("a")
		Expect(ok).To(BeTrue())
		_, ok = cache.Get("c")
		Expect(ok).To(BeTrue())
		Expect(cache.Len()).To(Equal(2))
	})

	It("refreshes existing keys in place", func() {
		cache := utils.NewLRU[string, int](1)
		cache.Put("a", 1)
		cache.Put("a", 2)

		v, ok := cache.Get("a")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(2))
		Expect(cache.Len()).To(Equal(1))
	})

	It("misses everything at zero capacity", func() {
		cache := utils.NewLRU[string, int](0)
		cache.Put("a", 1)

		_, ok := cache.Get("a")
		Expect(ok).To(BeFalse())
		Expect(cache.Len()).To(BeZero())
	})

	It("drops all entries on purge", func() {
		cache := utils.NewLRU[string, int](4)
		cache.Put("a", 1)
		cache.Put("b", 2)

		cache.Purge()

		Expect(cache.Len()).To(BeZero())
		_, ok := cache.Get("a")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("Truncate", func() {
	It("leaves short strings untouched", func() {
		Expect(utils.Truncate("short", 10)).To(Equal("short"))
	})

	It("cuts long strings with an ellipsis", func() {
		Expect(utils.Truncate("abcdefghij", 4)).To(Equal("abcd..."))
	})
})
