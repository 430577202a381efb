package notify

import (
	"io"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestNotify(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Notify Suite")
}

type mockTimeSource struct {
	now time.Time
}

func (m *mockTimeSource) Now() time.Time {
	return m.now
}

var _ = Describe("Feed", func() {
	var (
		clock *mockTimeSource
		feed  *Feed
	)

	BeforeEach(func() {
		clock = &mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
		feed = NewFeedWithDeps(3*time.Second, clock)
	})

	When("a notification is recorded", func() {
		BeforeEach(func() {
			feed.Notify(KindDecodeError, "no QR code found")
		})

		It("should be active", func() {
			active := feed.Active()
			Expect(active).To(HaveLen(1))
			Expect(active[0].Kind).To(Equal(KindDecodeError))
			Expect(active[0].Message).To(Equal("no QR code found"))
		})

		It("should dismiss itself after the TTL", func() {
			clock.now = clock.now.Add(3 * time.Second)
			Expect(feed.Active()).To(BeEmpty())
		})

		It("can be dismissed early", func() {
			id := feed.Active()[0].ID
			Expect(feed.Dismiss(id)).To(BeTrue())
			Expect(feed.Active()).To(BeEmpty())
		})

		It("reports unknown IDs on dismiss", func() {
			Expect(feed.Dismiss(999)).To(BeFalse())
		})
	})

	When("several notifications are recorded", func() {
		BeforeEach(func() {
			feed.Notify(KindInfo, "first")
			clock.now = clock.now.Add(time.Second)
			feed.Notify(KindUploadItemError, "item 2 failed")
		})

		It("returns them oldest first", func() {
			active := feed.Active()
			Expect(active).To(HaveLen(2))
			Expect(active[0].Message).To(Equal("first"))
			Expect(active[1].Message).To(Equal("item 2 failed"))
		})

		It("expires each on its own schedule", func() {
			clock.now = clock.now.Add(2500 * time.Millisecond)
			active := feed.Active()
			Expect(active).To(HaveLen(1))
			Expect(active[0].Message).To(Equal("item 2 failed"))
		})
	})

	Describe("Kind.IsError", func() {
		It("treats info and success as non-errors", func() {
			Expect(KindInfo.IsError()).To(BeFalse())
			Expect(KindSuccess.IsError()).To(BeFalse())
			Expect(KindCameraError.IsError()).To(BeTrue())
		})
	})
})
