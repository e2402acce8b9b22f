package similarity_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/similarity"
)

var _ = Describe("Score", func() {
	It("returns 1.0 for identical non-empty inputs", func() {
		Expect(similarity.Score("the quick brown fox", "the quick brown fox")).To(Equal(1.0))
	})

	It("ignores case for identical inputs", func() {
		Expect(similarity.Score("Hello World", "hello world")).To(Equal(1.0))
	})

	It("returns 0 when either input is empty", func() {
		Expect(similarity.Score("", "something")).To(BeZero())
		Expect(similarity.Score("something", "")).To(BeZero())
		Expect(similarity.Score("   ", "something")).To(BeZero())
	})

	It("is symmetric", func() {
		pairs := [][2]string{
			{"invoices go out on the 5th", "invoices are sent on the fifth"},
			{"postgres connection pooling", "pooling connections in postgres"},
			{"a", "completely different text"},
		}
		for _, p := range pairs {
			Expect(similarity.Score(p[0], p[1])).To(Equal(similarity.Score(p[1], p[0])))
		}
	})

	It("returns 0 for texts sharing nothing", func() {
		Expect(similarity.Score("aaa bbb", "xyz qrs")).To(BeZero())
	})

	It("stays within [0,1]", func() {
		score := similarity.Score(
			"deploy the service on friday",
			"the service deploys every friday morning",
		)
		Expect(score).To(BeNumerically(">", 0))
		Expect(score).To(BeNumerically("<", 1))
	})

	It("scores near-duplicate reminders above the consolidation threshold", func() {
		score := similarity.Score(
			"Reminder: invoices go out on the 5th",
			"Reminder: invoices are sent on the fifth",
		)
		Expect(score).To(BeNumerically(">=", 0.6))
	})
})
