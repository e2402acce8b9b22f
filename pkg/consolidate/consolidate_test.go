package consolidate_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/consolidate"
	"github.com/papercomputeco/mnemo/pkg/eventstream/nop"
	"github.com/papercomputeco/mnemo/pkg/record"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/storage/inmemory"
)

// gatedTxDriver holds commits inside their transaction window until
// released, so a second commit can be issued while the first is in flight.
type gatedTxDriver struct {
	*inmemory.Driver
	entered chan struct{}
	release chan struct{}
}

func (d *gatedTxDriver) WithTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	d.entered <- struct{}{}
	<-d.release
	return d.Driver.WithTransaction(ctx, fn)
}

// indexedDriver pretends to carry a native full-text index and records
// whether the indexed query path was taken.
type indexedDriver struct {
	*inmemory.Driver
	queried bool
}

func (d *indexedDriver) NativeIndex() bool { return true }

func (d *indexedDriver) QueryByText(ctx context.Context, text, namespace string, limit int) ([]storage.TextMatch, error) {
	d.queried = true
	return d.Driver.QueryByText(ctx, text, namespace, limit)
}

var _ = Describe("Service", func() {
	var (
		ctx     context.Context
		driver  *inmemory.Driver
		service *consolidate.Service
		now     time.Time
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

		searcher := search.NewOrchestrator(driver, logger)
		service = consolidate.NewService(driver, searcher, nop.NewPublisher(), logger, consolidate.DefaultConfig())

		seed(record.Record{
			ID:         "inv-1",
			Namespace:  "agent-a",
			Content:    "Reminder: invoices go out on the 5th",
			Tags:       []string{"finance"},
			Importance: 0.5,
			CreatedAt:  now.Add(-2 * time.Hour),
		})
		seed(record.Record{
			ID:         "inv-2",
			Namespace:  "agent-a",
			Content:    "Reminder: invoices are sent on the fifth",
			Tags:       []string{"billing"},
			Importance: 0.7,
			CreatedAt:  now.Add(-1 * time.Hour),
		})
		seed(record.Record{
			ID:        "other",
			Namespace: "agent-a",
			Content:   "the deploy pipeline is green again",
			CreatedAt: now.Add(-30 * time.Minute),
		})
		seed(record.Record{
			ID:        "foreign",
			Namespace: "agent-b",
			Content:   "Reminder: invoices go out on the 5th",
			CreatedAt: now.Add(-3 * time.Hour),
		})
	})

	Describe("DetectDuplicates", func() {
		It("finds near-duplicate records at the default threshold", func() {
			candidates, err := service.DetectDuplicates(ctx,
				"Reminder: invoices go out on the 5th", 0.6, "agent-a", 10)
			Expect(err).ToNot(HaveOccurred())

			ids := make([]string, 0, len(candidates))
			for _, c := range candidates {
				ids = append(ids, c.Record.ID)
			}
			Expect(ids).To(ContainElements("inv-1", "inv-2"))
			Expect(ids).ToNot(ContainElement("other"))
			Expect(ids).ToNot(ContainElement("foreign"), "detection stays inside the namespace")
		})

		It("sorts candidates by score descending", func() {
			candidates, err := service.DetectDuplicates(ctx,
				"Reminder: invoices go out on the 5th", 0.6, "agent-a", 10)
			Expect(err).ToNot(HaveOccurred())
			Expect(len(candidates)).To(BeNumerically(">=", 2))

			for i := 1; i < len(candidates); i++ {
				Expect(candidates[i-1].Score).To(BeNumerically(">=", candidates[i].Score))
			}
			Expect(candidates[0].Record.ID).To(Equal("inv-1"), "the exact copy scores highest")
		})

		It("excludes candidates below the threshold", func() {
			candidates, err := service.DetectDuplicates(ctx,
				"Reminder: invoices go out on the 5th", 0.99, "agent-a", 10)
			Expect(err).ToNot(HaveOccurred())
			Expect(candidates).To(HaveLen(1))
			Expect(candidates[0].Record.ID).To(Equal("inv-1"))
		})

		It("uses the native query path when the backend has an index", func() {
			indexed := &indexedDriver{Driver: driver}

			logger, err := zap.NewDevelopment()
			Expect(err).ToNot(HaveOccurred())

			searcher := search.NewOrchestrator(indexed, logger)
			svc := consolidate.NewService(indexed, searcher, nop.NewPublisher(), logger, consolidate.DefaultConfig())

			candidates, err := svc.DetectDuplicates(ctx,
				"Reminder: invoices go out on the 5th", 0.6, "agent-a", 10)
			Expect(err).ToNot(HaveOccurred())
			Expect(candidates).ToNot(BeEmpty())
			Expect(indexed.queried).To(BeTrue(), "detection should hit the indexed query, not a full scan")
		})
	})

	Describe("ValidateEligibility", func() {
		It("accepts a well-formed plan", func() {
			elig, err := service.ValidateEligibility(ctx, "inv-1", []string{"inv-2"})
			Expect(err).ToNot(HaveOccurred())
			Expect(elig.Valid).To(BeTrue())
			Expect(elig.Reasons).To(BeEmpty())
		})

		It("rejects a missing member with a reason", func() {
			elig, err := service.ValidateEligibility(ctx, "inv-1", []string{"ghost"})
			Expect(err).ToNot(HaveOccurred())
			Expect(elig.Valid).To(BeFalse())
			Expect(elig.Reasons).To(ContainElement(ContainSubstring("ghost")))
		})

		It("rejects the primary appearing among members", func() {
			elig, err := service.ValidateEligibility(ctx, "inv-1", []string{"inv-1"})
			Expect(err).ToNot(HaveOccurred())
			Expect(elig.Valid).To(BeFalse())
		})

		It("rejects duplicate member ids", func() {
			elig, err := service.ValidateEligibility(ctx, "inv-1", []string{"inv-2", "inv-2"})
			Expect(err).ToNot(HaveOccurred())
			Expect(elig.Valid).To(BeFalse())
			Expect(elig.Reasons).To(ContainElement(ContainSubstring("more than once")))
		})

		It("rejects cross-namespace plans", func() {
			elig, err := service.ValidateEligibility(ctx, "inv-1", []string{"foreign"})
			Expect(err).ToNot(HaveOccurred())
			Expect(elig.Valid).To(BeFalse())
			Expect(elig.Reasons).To(ContainElement(ContainSubstring("namespace")))
		})

		It("collects every failed check, not just the first", func() {
			elig, err := service.ValidateEligibility(ctx, "", nil)
			Expect(err).ToNot(HaveOccurred())
			Expect(elig.Valid).To(BeFalse())
			Expect(len(elig.Reasons)).To(BeNumerically(">=", 2))
		})
	})

	Describe("PreviewMerge", func() {
		It("shows the merged record without mutating storage", func() {
			preview, err := service.PreviewMerge(ctx, "inv-1", []string{"inv-2"})
			Expect(err).ToNot(HaveOccurred())

			Expect(preview.Merged.Tags).To(ConsistOf("billing", "finance"))
			Expect(preview.Merged.Importance).To(Equal(0.7), "merge keeps the maximum importance")
			Expect(preview.FieldDiffs).ToNot(BeEmpty())

			stored, err := driver.Get(ctx, "inv-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Tags).To(ConsistOf("finance"))
			Expect(stored.Consolidated).To(BeFalse())

			member, err := driver.Get(ctx, "inv-2")
			Expect(err).ToNot(HaveOccurred())
			Expect(member.Consolidated).To(BeFalse())
		})
	})

	Describe("Commit", func() {
		It("merges members into the primary and reduces the searchable count", func() {
			before, err := driver.List(ctx, "agent-a")
			Expect(err).ToNot(HaveOccurred())

			result, err := service.Commit(ctx, "inv-1", []string{"inv-2"})
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Consolidated).To(Equal(1))
			Expect(result.EventID).ToNot(BeEmpty())

			after, err := driver.List(ctx, "agent-a")
			Expect(err).ToNot(HaveOccurred())
			Expect(after).To(HaveLen(len(before) - 1))

			primary, err := driver.Get(ctx, "inv-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(primary.Consolidated).To(BeFalse())
			Expect(primary.Tags).To(ConsistOf("billing", "finance"))
			Expect(primary.Importance).To(Equal(0.7))
			Expect(primary.Metadata).To(HaveKey("consolidated_members"))

			member, err := driver.Get(ctx, "inv-2")
			Expect(err).ToNot(HaveOccurred())
			Expect(member.Consolidated).To(BeTrue())
			Expect(member.Metadata).To(HaveKeyWithValue("consolidated_into", "inv-1"))
		})

		It("fails a repeated commit of the same plan", func() {
			_, err := service.Commit(ctx, "inv-1", []string{"inv-2"})
			Expect(err).ToNot(HaveOccurred())

			_, err = service.Commit(ctx, "inv-1", []string{"inv-2"})
			var inelig consolidate.IneligibleError
			Expect(err).To(BeAssignableToTypeOf(inelig))
		})

		It("rejects an ineligible plan without touching storage", func() {
			_, err := service.Commit(ctx, "inv-1", []string{"ghost"})

			var inelig consolidate.IneligibleError
			Expect(err).To(BeAssignableToTypeOf(inelig))

			primary, err := driver.Get(ctx, "inv-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(primary.Metadata).ToNot(HaveKey("consolidated_members"))
		})

		It("allows only one of two concurrent commits with overlapping ids", func() {
			gated := &gatedTxDriver{
				Driver:  driver,
				entered: make(chan struct{}, 1),
				release: make(chan struct{}),
			}

			logger, err := zap.NewDevelopment()
			Expect(err).ToNot(HaveOccurred())

			searcher := search.NewOrchestrator(gated, logger)
			svc := consolidate.NewService(gated, searcher, nop.NewPublisher(), logger, consolidate.DefaultConfig())

			firstDone := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				_, err := svc.Commit(ctx, "inv-1", []string{"inv-2"})
				firstDone <- err
			}()

			// Wait until the first commit is inside its transaction window,
			// its reservation held.
			Eventually(gated.entered, 2*time.Second).Should(Receive())

			_, err = svc.Commit(ctx, "inv-2", []string{"other"})
			var conflict consolidate.ConflictError
			Expect(errors.As(err, &conflict)).To(BeTrue())
			Expect(conflict.ID).To(Equal("inv-2"))

			close(gated.release)
			Eventually(firstDone, 2*time.Second).Should(Receive(BeNil()))

			member, err := driver.Get(ctx, "inv-2")
			Expect(err).ToNot(HaveOccurred())
			Expect(member.Consolidated).To(BeTrue())

			other, err := driver.Get(ctx, "other")
			Expect(err).ToNot(HaveOccurred())
			Expect(other.Consolidated).To(BeFalse(), "the conflicting plan must not have run")
		})

		It("hides consolidated members from later detection", func() {
			_, err := service.Commit(ctx, "inv-1", []string{"inv-2"})
			Expect(err).ToNot(HaveOccurred())

			candidates, err := service.DetectDuplicates(ctx,
				"Reminder: invoices are sent on the fifth", 0.6, "agent-a", 10)
			Expect(err).ToNot(HaveOccurred())
			for _, c := range candidates {
				Expect(c.Record.ID).ToNot(Equal("inv-2"))
			}
		})
	})

	Describe("SuccessRate and History", func() {
		It("tracks commit outcomes", func() {
			Expect(service.SuccessRate()).To(BeZero())

			_, err := service.Commit(ctx, "inv-1", []string{"inv-2"})
			Expect(err).ToNot(HaveOccurred())
			Expect(service.SuccessRate()).To(Equal(1.0))

			_, err = service.Commit(ctx, "inv-1", []string{"ghost"})
			Expect(err).To(HaveOccurred())
			Expect(service.SuccessRate()).To(Equal(0.5))

			history := service.History()
			Expect(history).ToNot(BeEmpty())
			Expect(history[len(history)-1].Stage).To(Equal("commit"))
			Expect(history[len(history)-1].Outcome).To(Equal("ineligible"))
		})
	})
})
