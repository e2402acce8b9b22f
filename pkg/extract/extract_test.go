package extract_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/extract"
	"github.com/papercomputeco/mnemo/pkg/hierarchy"
)

func newTestExtractor(config extract.Config) (*extract.Extractor, *hierarchy.Store) {
	tree := hierarchy.NewStore(hierarchy.DefaultConfig())

	_, err := tree.AddCategory("Technology", "")
	Expect(err).ToNot(HaveOccurred())
	_, err = tree.AddCategory("Programming", "Technology")
	Expect(err).ToNot(HaveOccurred())
	_, err = tree.AddCategory("Databases", "Technology")
	Expect(err).ToNot(HaveOccurred())

	logger, err := zap.NewDevelopment()
	Expect(err).ToNot(HaveOccurred())

	return extract.NewExtractor(config, extract.DefaultRules(), tree, logger), tree
}

var _ = Describe("Extractor", func() {
	var extractor *extract.Extractor

	BeforeEach(func() {
		extractor, _ = newTestExtractor(extract.DefaultConfig())
	})

	Describe("Extract", func() {
		It("classifies programming and database text into hierarchy paths", func() {
			result := extractor.Extract(extract.Input{
				Content:  "I use Python and PostgreSQL for the ingest service",
				Existing: []string{"Programming", "Databases"},
			})

			Expect(result.Fallback).To(BeFalse())

			byName := make(map[string]extract.Category)
			for _, c := range result.Categories {
				byName[c.Name] = c
			}

			prog, ok := byName["Programming"]
			Expect(ok).To(BeTrue())
			Expect(prog.HierarchyPath).To(Equal("Technology/Programming"))
			Expect(prog.Confidence).To(BeNumerically(">=", 0.9))

			db, ok := byName["Databases"]
			Expect(ok).To(BeTrue())
			Expect(db.HierarchyPath).To(Equal("Technology/Databases"))
			Expect(db.Confidence).To(BeNumerically(">=", 0.9))
		})

		It("names the top-confidence category as primary", func() {
			result := extractor.Extract(extract.Input{
				Content: "fixed a panic in the worker, root cause was a nil pointer",
			})

			Expect(result.PrimaryCategory).To(Equal("Debugging"))
			Expect(result.Confidence).To(BeNumerically(">", 0))
			Expect(result.Categories[0].Name).To(Equal(result.PrimaryCategory))
		})

		It("orders categories by confidence descending with name tie-break", func() {
			result := extractor.Extract(extract.Input{
				Content: "invoice reminder: schedule the payment before the deadline",
			})

			for i := 1; i < len(result.Categories); i++ {
				prev, cur := result.Categories[i-1], result.Categories[i]
				if prev.Confidence == cur.Confidence {
					Expect(prev.NormalizedName < cur.NormalizedName).To(BeTrue())
				} else {
					Expect(prev.Confidence).To(BeNumerically(">", cur.Confidence))
				}
			}
		})

		It("falls back to General when nothing matches", func() {
			result := extractor.Extract(extract.Input{Content: "zzz qqq vvv"})

			Expect(result.Fallback).To(BeTrue())
			Expect(result.PrimaryCategory).To(Equal("General"))
			Expect(result.Confidence).To(Equal(0.3))
		})

		It("falls back to the first existing category when nothing matches", func() {
			result := extractor.Extract(extract.Input{
				Content:  "zzz qqq vvv",
				Existing: []string{"", "Journal"},
			})

			Expect(result.Fallback).To(BeTrue())
			Expect(result.PrimaryCategory).To(Equal("Journal"))
		})

		It("caps the category count at MaxCategories", func() {
			config := extract.DefaultConfig()
			config.MaxCategories = 2
			capped, _ := newTestExtractor(config)

			result := capped.Extract(extract.Input{
				Content: "python code for the postgres migration, deploy via docker, " +
					"fixed an auth bug, invoice reminder",
			})

			Expect(len(result.Categories)).To(BeNumerically("<=", 2))
		})

		It("terminates quickly on pathological input", func() {
			huge := strings.Repeat("python postgres docker bug invoice reminder ", 2000)

			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				result := extractor.Extract(extract.Input{Content: huge})
				Expect(result.Categories).ToNot(BeEmpty())
				close(done)
			}()

			Eventually(done, 5*time.Second).Should(BeClosed())
		})

		It("terminates quickly when a rule matches the empty string", func() {
			// x* matches zero-width at every position; the scan must bail
			// out instead of walking the whole input byte by byte.
			err := extractor.AddRule(extract.Rule{
				Name:       "degenerate",
				Pattern:    "x*",
				Category:   "Noise",
				Confidence: 0.9,
				Priority:   200,
				Enabled:    true,
			})
			Expect(err).ToNot(HaveOccurred())

			huge := strings.Repeat("plain words with nothing to anchor on ", 2000)

			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				result := extractor.Extract(extract.Input{Content: huge})
				Expect(result.PrimaryCategory).ToNot(BeEmpty())
				close(done)
			}()

			Eventually(done, 2*time.Second).Should(BeClosed())
		})

		It("returns virtual refs for categories absent from the tree", func() {
			result := extractor.Extract(extract.Input{
				Content: "reminder: team meeting on the shared calendar",
			})

			byName := make(map[string]extract.Category)
			for _, c := range result.Categories {
				byName[c.Name] = c
			}

			sched, ok := byName["Scheduling"]
			Expect(ok).To(BeTrue())
			Expect(sched.Ref.IsVirtual()).To(BeTrue())
			Expect(sched.HierarchyPath).To(Equal("Work/Scheduling"))
		})
	})

	Describe("rule management", func() {
		It("applies an added rule to subsequent extractions", func() {
			input := extract.Input{Content: "the sourdough starter needs feeding"}

			before := extractor.Extract(input)
			Expect(before.Fallback).To(BeTrue())

			err := extractor.AddRule(extract.Rule{
				Name:       "baking",
				Pattern:    `(?i)\b(sourdough|starter|bake|baking)\b`,
				Category:   "Baking",
				Confidence: 0.8,
				Priority:   60,
				Enabled:    true,
			})
			Expect(err).ToNot(HaveOccurred())

			after := extractor.Extract(input)
			Expect(after.Fallback).To(BeFalse())
			Expect(after.PrimaryCategory).To(Equal("Baking"))
		})

		It("rejects rules with invalid patterns", func() {
			err := extractor.AddRule(extract.Rule{
				Name:    "broken",
				Pattern: "([unclosed",
				Enabled: true,
			})
			Expect(err).To(HaveOccurred())
		})

		It("stops matching after a rule is removed", func() {
			input := extract.Input{Content: "python code everywhere"}

			before := extractor.Extract(input)
			Expect(before.PrimaryCategory).To(Equal("Programming"))

			Expect(extractor.RemoveRule("programming-languages")).To(BeTrue())
			Expect(extractor.RemoveRule("programming-languages")).To(BeFalse())

			after := extractor.Extract(input)
			Expect(after.PrimaryCategory).ToNot(Equal("Programming"))
		})

		It("returns rules in evaluation order", func() {
			rules := extractor.Rules()
			Expect(rules).ToNot(BeEmpty())
			for i := 1; i < len(rules); i++ {
				Expect(rules[i-1].Priority).To(BeNumerically(">=", rules[i].Priority))
			}
		})
	})

	Describe("caching", func() {
		It("is invalidated by hierarchy mutations", func() {
			var tree *hierarchy.Store
			extractor, tree = newTestExtractor(extract.DefaultConfig())

			input := extract.Input{Content: "tuning the sql query planner"}

			first := extractor.Extract(input)
			Expect(first.PrimaryCategory).To(Equal("Databases"))

			// A later mutation bumps the tree generation; the next extract
			// must re-resolve rather than serve the stale cached result.
			_, err := tree.AddCategory("Performance", "Technology")
			Expect(err).ToNot(HaveOccurred())

			second := extractor.Extract(input)
			Expect(second.PrimaryCategory).To(Equal(first.PrimaryCategory))
		})
	})
})
