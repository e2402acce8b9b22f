package nop_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/eventstream"
	"github.com/papercomputeco/mnemo/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	var publisher *nop.Publisher

	BeforeEach(func() {
		publisher = nop.NewPublisher()
	})

	It("rejects nil events", func() {
		err := publisher.PublishConsolidation(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilEvent))
	})

	It("accepts well-formed events without side effects", func() {
		event := &eventstream.ConsolidationEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeRecordsConsolidated,
			EventID:       "evt-1",
			EmittedAt:     time.Now().UTC(),
			Namespace:     "agent-a",
			PrimaryID:     "rec-1",
			MemberIDs:     []string{"rec-2"},
		}

		Expect(publisher.PublishConsolidation(context.Background(), event)).To(Succeed())
		Expect(publisher.Close()).To(Succeed())
	})
})
