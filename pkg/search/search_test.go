package search_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/hierarchy"
	"github.com/papercomputeco/mnemo/pkg/record"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/storage/inmemory"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx          context.Context
		driver       *inmemory.Driver
		orchestrator *search.Orchestrator
		now          time.Time
	)

	seed := func(rec record.Record) {
		Expect(driver.Insert(ctx, &rec)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

		logger, err := zap.NewDevelopment()
		Expect(err).ToNot(HaveOccurred())

		orchestrator = search.NewOrchestrator(driver, logger,
			search.WithClock(func() time.Time { return now }),
		)

		seed(record.Record{
			ID:         "rec-1",
			Namespace:  "agent-a",
			Content:    "postgres connection pooling settings for the ingest service",
			Tags:       []string{"ops"},
			Category:   "Databases",
			Importance: 0.8,
			CreatedAt:  now.Add(-1 * time.Hour),
		})
		seed(record.Record{
			ID:         "rec-2",
			Namespace:  "agent-a",
			Content:    "sqlite pragma tuning notes",
			Category:   "Databases",
			Importance: 0.4,
			CreatedAt:  now.Add(-48 * time.Hour),
		})
		seed(record.Record{
			ID:         "rec-3",
			Namespace:  "agent-b",
			Content:    "postgres credentials rotated",
			Category:   "Security",
			Importance: 0.9,
			CreatedAt:  now.Add(-30 * time.Minute),
		})
		seed(record.Record{
			ID:           "rec-4",
			Namespace:    "agent-a",
			Content:      "postgres upgrade checklist",
			Category:     "Databases",
			Importance:   0.7,
			CreatedAt:    now.Add(-2 * time.Hour),
			Consolidated: true,
		})
	})

	Describe("Search", func() {
		It("degrades fulltext to the fallback matcher on an indexless backend", func() {
			results, err := orchestrator.Search(ctx, "postgres", search.StrategyFullText, search.Options{})
			Expect(err).ToNot(HaveOccurred())
			Expect(results).ToNot(BeEmpty())
			for _, r := range results {
				Expect(r.StrategyUsed).To(Equal(search.StrategyFallback))
			}
		})

		It("returns identical results for repeated identical queries", func() {
			opts := search.Options{Namespace: "agent-a"}

			first, err := orchestrator.Search(ctx, "postgres sqlite", search.StrategyFallback, opts)
			Expect(err).ToNot(HaveOccurred())

			second, err := orchestrator.Search(ctx, "postgres sqlite", search.StrategyFallback, opts)
			Expect(err).ToNot(HaveOccurred())

			Expect(second).To(HaveLen(len(first)))
			for i := range first {
				Expect(second[i].ID).To(Equal(first[i].ID))
				Expect(second[i].Score).To(Equal(first[i].Score))
			}
		})

		It("never returns consolidated records", func() {
			results, err := orchestrator.Search(ctx, "postgres", search.StrategyFallback, search.Options{
				Namespace: "agent-a",
			})
			Expect(err).ToNot(HaveOccurred())
			for _, r := range results {
				Expect(r.ID).ToNot(Equal("rec-4"))
			}
		})

		It("scopes results to the requested namespace on the fallback path", func() {
			results, err := orchestrator.Search(ctx, "postgres", search.StrategyFallback, search.Options{
				Namespace: "agent-b",
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("rec-3"))
		})

		It("rejects unknown strategy names before querying", func() {
			_, err := orchestrator.Search(ctx, "postgres", "vector", search.Options{})

			var unknownErr search.UnknownStrategyError
			Expect(err).To(BeAssignableToTypeOf(unknownErr))
		})

		It("rejects invalid metadata filters eagerly", func() {
			_, err := orchestrator.Search(ctx, "postgres", "", search.Options{
				Metadata: []search.MetadataFilter{
					{Field: "nonsense", Operator: search.OpEq, Value: "x"},
				},
			})

			var filterErr search.InvalidFilterError
			Expect(err).To(BeAssignableToTypeOf(filterErr))
		})

		It("filters by minimum importance", func() {
			results, err := orchestrator.Search(ctx, "postgres sqlite", search.StrategyFallback, search.Options{
				Namespace:     "agent-a",
				MinImportance: 0.5,
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("rec-1"))
		})

		It("applies the in operator against a value list", func() {
			results, err := orchestrator.Search(ctx, "postgres sqlite", search.StrategyFallback, search.Options{
				Metadata: []search.MetadataFilter{
					{Field: "category", Operator: search.OpIn, Value: []string{"Security", "Databases"}},
				},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(results).ToNot(BeEmpty())
			for _, r := range results {
				Expect([]string{"Security", "Databases"}).To(ContainElement(r.Record.Category))
			}
		})

		It("applies temporal within filters relative to the injected clock", func() {
			results, err := orchestrator.Search(ctx, "postgres sqlite", search.StrategyFallback, search.Options{
				Namespace: "agent-a",
				Temporal:  []search.TemporalFilter{{Within: "1d"}},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("rec-1"), "rec-2 is two days old")
		})

		It("honors offset and limit after filtering", func() {
			all, err := orchestrator.Search(ctx, "postgres sqlite", search.StrategyFallback, search.Options{
				Namespace: "agent-a",
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(len(all)).To(BeNumerically(">=", 2))

			page, err := orchestrator.Search(ctx, "postgres sqlite", search.StrategyFallback, search.Options{
				Namespace: "agent-a",
				Offset:    1,
				Limit:     1,
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(page).To(HaveLen(1))
			Expect(page[0].ID).To(Equal(all[1].ID))
		})

		It("returns an empty page when the offset passes the result set", func() {
			results, err := orchestrator.Search(ctx, "postgres", search.StrategyFallback, search.Options{
				Offset: 100,
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("attaches result metadata when requested", func() {
			results, err := orchestrator.Search(ctx, "postgres", search.StrategyFallback, search.Options{
				Namespace:       "agent-a",
				IncludeMetadata: true,
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(results).ToNot(BeEmpty())
			Expect(results[0].Metadata).To(HaveKeyWithValue("native_index", false))
			Expect(results[0].Metadata).To(HaveKeyWithValue("namespace", "agent-a"))
		})
	})

	Describe("recent strategy", func() {
		It("orders results newest first without a text predicate", func() {
			results, err := orchestrator.Search(ctx, "", search.StrategyRecent, search.Options{
				Namespace: "agent-a",
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("rec-1"))
			Expect(results[1].ID).To(Equal("rec-2"))
		})
	})

	Describe("category expansion", func() {
		It("widens a category filter to hierarchy descendants", func() {
			tree := hierarchy.NewStore(hierarchy.DefaultConfig())
			_, err := tree.AddCategory("Technology", "")
			Expect(err).ToNot(HaveOccurred())
			_, err = tree.AddCategory("Databases", "Technology")
			Expect(err).ToNot(HaveOccurred())
			_, err = tree.AddCategory("Security", "Technology")
			Expect(err).ToNot(HaveOccurred())

			logger, err := zap.NewDevelopment()
			Expect(err).ToNot(HaveOccurred())

			withTree := search.NewOrchestrator(driver, logger, search.WithHierarchy(tree))

			results, err := withTree.Search(ctx, "postgres sqlite", search.StrategyFallback, search.Options{
				Categories: []string{"Technology"},
			})
			Expect(err).ToNot(HaveOccurred())
			Expect(results).ToNot(BeEmpty())
			for _, r := range results {
				Expect([]string{"Databases", "Security"}).To(ContainElement(r.Record.Category))
			}
		})
	})

	Describe("AvailableStrategies", func() {
		It("lists the built-in strategies sorted", func() {
			Expect(orchestrator.AvailableStrategies()).To(Equal([]string{
				search.StrategyFallback,
				search.StrategyFullText,
				search.StrategyRecent,
			}))
		})
	})
})
