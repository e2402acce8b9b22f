package inmemory_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/record"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/storage/inmemory"
)

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		now    time.Time
	)

	seed := func(rec record.Record) {
		Expect(driver.Insert(ctx, &rec)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	})

	Describe("Insert and Get", func() {
		It("round-trips a record", func() {
			seed(record.Record{ID: "r1", Namespace: "ns", Content: "hello", CreatedAt: now})

			got, err := driver.Get(ctx, "r1")
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Content).To(Equal("hello"))
			Expect(got.Namespace).To(Equal("ns"))
		})

		It("rejects duplicate ids", func() {
			seed(record.Record{ID: "r1", Content: "first"})

			err := driver.Insert(ctx, &record.Record{ID: "r1", Content: "second"})
			var conflict storage.ConflictError
			Expect(errors.As(err, &conflict)).To(BeTrue())
			Expect(conflict.ID).To(Equal("r1"))
		})

		It("rejects nil records and empty ids", func() {
			Expect(driver.Insert(ctx, nil)).ToNot(Succeed())
			Expect(driver.Insert(ctx, &record.Record{})).ToNot(Succeed())
		})

		It("returns a typed not-found error", func() {
			_, err := driver.Get(ctx, "missing")
			var nf storage.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
			Expect(nf.ID).To(Equal("missing"))
		})

		It("stores a copy, not the caller's pointer", func() {
			rec := record.Record{ID: "r1", Content: "original", Tags: []string{"a"}}
			Expect(driver.Insert(ctx, &rec)).To(Succeed())

			rec.Content = "mutated"
			rec.Tags[0] = "b"

			got, err := driver.Get(ctx, "r1")
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Content).To(Equal("original"))
			Expect(got.Tags).To(Equal([]string{"a"}))
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			seed(record.Record{ID: "a1", Namespace: "a", CreatedAt: now.Add(-2 * time.Hour)})
			seed(record.Record{ID: "a2", Namespace: "a", CreatedAt: now.Add(-1 * time.Hour)})
			seed(record.Record{ID: "b1", Namespace: "b", CreatedAt: now})
			seed(record.Record{ID: "a3", Namespace: "a", CreatedAt: now.Add(-3 * time.Hour), Consolidated: true})
		})

		It("scopes to the namespace and orders newest first", func() {
			recs, err := driver.List(ctx, "a")
			Expect(err).ToNot(HaveOccurred())
			Expect(recs).To(HaveLen(2))
			Expect(recs[0].ID).To(Equal("a2"))
			Expect(recs[1].ID).To(Equal("a1"))
		})

		It("returns every namespace when none is given", func() {
			recs, err := driver.List(ctx, "")
			Expect(err).ToNot(HaveOccurred())
			Expect(recs).To(HaveLen(3))
		})

		It("excludes consolidated records", func() {
			recs, err := driver.List(ctx, "a")
			Expect(err).ToNot(HaveOccurred())
			for _, r := range recs {
				Expect(r.ID).ToNot(Equal("a3"))
			}
		})
	})

	Describe("QueryByText", func() {
		BeforeEach(func() {
			seed(record.Record{ID: "r1", Namespace: "ns", Content: "postgres pooling notes", CreatedAt: now})
			seed(record.Record{ID: "r2", Namespace: "ns", Content: "sqlite pragma notes", CreatedAt: now.Add(-time.Hour)})
			seed(record.Record{ID: "r3", Namespace: "other", Content: "postgres credentials", CreatedAt: now})
		})

		It("matches records containing query terms, scoped by namespace", func() {
			matches, err := driver.QueryByText(ctx, "postgres", "ns", 10)
			Expect(err).ToNot(HaveOccurred())
			Expect(matches).To(HaveLen(1))
			Expect(matches[0].Record.ID).To(Equal("r1"))
		})

		It("ranks by the fraction of matched terms", func() {
			matches, err := driver.QueryByText(ctx, "postgres notes", "ns", 10)
			Expect(err).ToNot(HaveOccurred())
			Expect(matches).To(HaveLen(2))
			Expect(matches[0].Record.ID).To(Equal("r1"))
			Expect(matches[0].Score).To(Equal(1.0))
			Expect(matches[1].Score).To(Equal(0.5))
		})
	})

	Describe("Update and Delete", func() {
		It("applies only the set patch fields", func() {
			seed(record.Record{ID: "r1", Content: "before", Importance: 0.2, Tags: []string{"x"}})

			content := "after"
			Expect(driver.Update(ctx, "r1", record.Patch{Content: &content})).To(Succeed())

			got, err := driver.Get(ctx, "r1")
			Expect(err).ToNot(HaveOccurred())
			Expect(got.Content).To(Equal("after"))
			Expect(got.Importance).To(Equal(0.2))
			Expect(got.Tags).To(Equal([]string{"x"}))
		})

		It("deletes records and reports missing ids", func() {
			seed(record.Record{ID: "r1"})

			Expect(driver.Delete(ctx, "r1")).To(Succeed())

			var nf storage.NotFoundError
			Expect(errors.As(driver.Delete(ctx, "r1"), &nf)).To(BeTrue())
		})
	})

	Describe("WithTransaction", func() {
		BeforeEach(func() {
			seed(record.Record{ID: "r1", Content: "one"})
			seed(record.Record{ID: "r2", Content: "two"})
		})

		It("commits all writes when fn succeeds", func() {
			content := "merged"
			consolidated := true

			err := driver.WithTransaction(ctx, func(tx storage.Tx) error {
				if err := tx.Update(ctx, "r1", record.Patch{Content: &content}); err != nil {
					return err
				}
				return tx.Update(ctx, "r2", record.Patch{Consolidated: &consolidated})
			})
			Expect(err).ToNot(HaveOccurred())

			r1, err := driver.Get(ctx, "r1")
			Expect(err).ToNot(HaveOccurred())
			Expect(r1.Content).To(Equal("merged"))

			r2, err := driver.Get(ctx, "r2")
			Expect(err).ToNot(HaveOccurred())
			Expect(r2.Consolidated).To(BeTrue())
		})

		It("discards every staged write when fn fails", func() {
			content := "partial"

			err := driver.WithTransaction(ctx, func(tx storage.Tx) error {
				if err := tx.Update(ctx, "r1", record.Patch{Content: &content}); err != nil {
					return err
				}
				return tx.Update(ctx, "missing", record.Patch{Content: &content})
			})
			Expect(err).To(HaveOccurred())

			r1, err := driver.Get(ctx, "r1")
			Expect(err).ToNot(HaveOccurred())
			Expect(r1.Content).To(Equal("one"), "the first staged write must not leak")
		})

		It("supports deletes inside a transaction", func() {
			err := driver.WithTransaction(ctx, func(tx storage.Tx) error {
				return tx.Delete(ctx, "r2")
			})
			Expect(err).ToNot(HaveOccurred())

			_, err = driver.Get(ctx, "r2")
			var nf storage.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
		})
	})

	It("reports no native index", func() {
		Expect(driver.NativeIndex()).To(BeFalse())
	})
})
