package view

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/selector"
	"github.com/l7mp/liveview/pkg/store"
)

var _ = Describe("CollectionView", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness()
	})

	It("should evaluate filters and projections in the store", func() {
		f, err := h.source.Filter(selector.MustNew(map[string]any{"x": map[string]any{"$gt": 0}}))
		Expect(err).NotTo(HaveOccurred())
		v, err := f.Pick("x")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeAssignableToTypeOf(&CollectionView{}))

		h.insert("id", "1", "x", 1, "y", 2)
		observer, rec := h.observe(v)
		fetcher, log := h.autoFetch(v)
		Expect(rec.Drain()).To(Equal([]feed.Event{added(D{"id": "1", "x": int64(1)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(1)}})))

		h.insert("id", "2", "x", 2, "y", 3)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{added(D{"id": "2", "x": int64(2)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(1)}, {"id": "2", "x": int64(2)}})))

		h.set("1", "x", 3)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{changed(D{"id": "1", "x": int64(3)}, D{"id": "1", "x": int64(1)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(3)}, {"id": "2", "x": int64(2)}})))

		h.set("1", "y", -2)
		h.flush()
		Expect(rec.Drain()).To(Equal(none()))
		Expect(log.Drain()).To(Equal(noSnapshots()))

		h.set("1", "x", -2)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{removed(D{"id": "1", "x": int64(3)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "2", "x": int64(2)}})))

		h.remove("2")
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{removed(D{"id": "2", "x": int64(2)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{})))

		h.remove("1")
		h.flush()
		Expect(rec.Drain()).To(Equal(none()))
		Expect(log.Drain()).To(Equal(noSnapshots()))

		Expect(rec.Violations()).To(BeEmpty())
		h.stop(observer, fetcher)
	})

	It("should filter on fields dropped by its projection", func() {
		p, err := h.source.Pick("x")
		Expect(err).NotTo(HaveOccurred())
		v, err := p.Filter(selector.MustNew(map[string]any{"y": "keep"}))
		Expect(err).NotTo(HaveOccurred())
		h.insert("id", "1", "x", 1, "y", "keep")
		h.insert("id", "2", "x", 2, "y", "drop")
		Expect(fetch(v)).To(Equal([]document.Document{{"id": "1", "x": int64(1)}}))
	})

	It("should sort natively", func() {
		v, err := h.source.Sort(selector.SortBy("-x"))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeAssignableToTypeOf(&CollectionView{}))
		h.insert("id", "1", "x", 1)
		h.insert("id", "2", "x", 3)
		h.insert("id", "3", "x", 2)
		Expect(fetch(v)).To(Equal([]document.Document{
			{"id": "2", "x": int64(3)}, {"id": "3", "x": int64(2)}, {"id": "1", "x": int64(1)}}))
	})

	It("should deliver positional callbacks", func() {
		v, err := h.source.Sort(selector.SortBy("x"))
		Expect(err).NotTo(HaveOccurred())
		h.insert("id", "1", "x", 1)
		h.insert("id", "2", "x", 3)

		var events []feed.Event
		_, err = v.Observe(feed.CollectOrdered(&events))
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(2))
		Expect(events[1].Index).To(Equal(1))

		events = nil
		h.insert("id", "3", "x", 2)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Index).To(Equal(1))
		Expect(events[0].BeforeID).To(Equal("2"))

		events = nil
		h.set("1", "x", 4)
		Expect(events).To(HaveLen(2))
		Expect(events[0].Type).To(Equal(feed.Changed))
		Expect(events[1].Type).To(Equal(feed.Moved))
		Expect(events[1].Index).To(Equal(0))
		Expect(events[1].ToIndex).To(Equal(2))
		Expect(events[1].BeforeID).To(BeNil())
	})

	It("should return itself when reified unchanged", func() {
		v, err := h.source.Reify()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeIdenticalTo(h.source))
	})

	It("should explain its query", func() {
		v, err := h.source.Filter(selector.MustNew(map[string]any{"x": 1}))
		Expect(err).NotTo(HaveOccurred())
		v, err = v.Omit("y")
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Explain().String()).To(Equal(`test.find({"x":1}, fields={"y":0})` + "\n"))
	})
})

var _ = Describe("CursorView", func() {
	It("should follow a cursor", func() {
		h := newHarness()
		cur, err := h.collection.Find(nil, store.FindOptions{})
		Expect(err).NotTo(HaveOccurred())
		v, err := From(h.env, cur)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.IsOrdered()).To(BeTrue())

		h.insert("id", "1", "x", 1)
		observer, rec := h.observe(v)
		fetcher, log := h.autoFetch(v)
		Expect(rec.Drain()).To(Equal([]feed.Event{added(D{"id": "1", "x": int64(1)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(1)}})))

		h.insert("id", "2", "x", 2)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{added(D{"id": "2", "x": int64(2)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(1)}, {"id": "2", "x": int64(2)}})))

		h.set("1", "x", 3)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{changed(D{"id": "1", "x": int64(3)}, D{"id": "1", "x": int64(1)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(3)}, {"id": "2", "x": int64(2)}})))

		h.remove("2")
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{removed(D{"id": "2", "x": int64(2)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(3)}})))

		h.stop(observer, fetcher)
	})

	It("should refuse unknown sources", func() {
		_, err := From(DefaultEnv(), 42)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("EmptyView", func() {
	It("should stay empty under every transform", func() {
		e := Empty(DefaultEnv())
		Expect(fetch(e)).To(BeEmpty())

		v, err := e.Filter(selector.MustNew(map[string]any{"x": 1}))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeIdenticalTo(e))
		v, err = e.Pick("x")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeIdenticalTo(e))
		v, err = e.Sort(selector.SortBy("x"))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeIdenticalTo(e))
		v, err = e.Reify()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeIdenticalTo(e))

		var events []feed.Event
		_, err = e.Observe(feed.Collect(&events))
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(BeEmpty())
		Expect(e.Explain().String()).To(Equal("empty set()\n"))
	})
})
