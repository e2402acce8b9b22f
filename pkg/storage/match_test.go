package storage_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/storage"
)

var _ = Describe("FallbackTerms", func() {
	It("lower-cases and splits on whitespace", func() {
		Expect(storage.FallbackTerms("Postgres Connection POOLING")).
			To(Equal([]string{"postgres", "connection", "pooling"}))
	})

	It("trims surrounding punctuation", func() {
		Expect(storage.FallbackTerms(`"invoices," (go) out!`)).
			To(Equal([]string{"invoices", "go", "out"}))
	})

	It("removes duplicate terms", func() {
		Expect(storage.FallbackTerms("go go Go")).To(Equal([]string{"go"}))
	})

	It("returns no terms for empty or punctuation-only input", func() {
		Expect(storage.FallbackTerms("")).To(BeEmpty())
		Expect(storage.FallbackTerms("... !!!")).To(BeEmpty())
	})
})

var _ = Describe("FallbackScore", func() {
	It("scores the fraction of terms present", func() {
		terms := storage.FallbackTerms("postgres sqlite redis mysql")
		Expect(storage.FallbackScore("we use postgres and sqlite", terms)).To(Equal(0.5))
	})

	It("matches case-insensitively", func() {
		terms := storage.FallbackTerms("postgres")
		Expect(storage.FallbackScore("POSTGRES is down", terms)).To(Equal(1.0))
	})

	It("returns 0 with no terms or no hits", func() {
		Expect(storage.FallbackScore("anything", nil)).To(BeZero())
		Expect(storage.FallbackScore("anything", storage.FallbackTerms("zzz"))).To(BeZero())
	})
})
