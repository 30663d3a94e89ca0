package view

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/liveview/internal/testutils"
	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/selector"
	"github.com/l7mp/liveview/pkg/store"
)

type D = document.Document

func added(d D) feed.Event { return testutils.Added(d) }
func changed(d, old D) feed.Event { return testutils.Changed(d, old) }
func removed(d D) feed.Event { return testutils.Removed(d) }

func none() []feed.Event { return []feed.Event{} }

func snapshots(docs ...[]D) [][]D { return docs }

func noSnapshots() [][]D { return [][]D{} }

var _ = Describe("Filter", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness()
	})

	It("should follow the documents matching a predicate", func() {
		v, err := h.source.Filter(PredicateFunc(func(d document.Document) (bool, error) {
			x, _ := document.AsInt(d["x"])
			d["x"] = "mutated by the predicate"
			return x%2 == 1, nil
		}))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeAssignableToTypeOf(&FilterView{}))

		h.insert("id", "1", "x", 1)
		observer, rec := h.observe(v)
		fetcher, log := h.autoFetch(v)
		Expect(rec.Drain()).To(Equal([]feed.Event{added(D{"id": "1", "x": int64(1)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(1)}})))

		h.insert("id", "2", "x", 3)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{added(D{"id": "2", "x": int64(3)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(1)}, {"id": "2", "x": int64(3)}})))

		h.insert("id", "3", "x", 4)
		h.flush()
		Expect(rec.Drain()).To(Equal(none()))
		Expect(log.Drain()).To(Equal(noSnapshots()))

		h.set("1", "x", 5)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{changed(D{"id": "1", "x": int64(5)}, D{"id": "1", "x": int64(1)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(5)}, {"id": "2", "x": int64(3)}})))

		h.set("1", "x", 6)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{removed(D{"id": "1", "x": int64(5)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "2", "x": int64(3)}})))

		h.set("1", "x", 5)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{added(D{"id": "1", "x": int64(5)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(5)}, {"id": "2", "x": int64(3)}})))

		h.set("3", "x", 8)
		h.flush()
		Expect(rec.Drain()).To(Equal(none()))
		Expect(log.Drain()).To(Equal(noSnapshots()))

		h.remove("2")
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{removed(D{"id": "2", "x": int64(3)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(5)}})))

		h.remove("3")
		h.flush()
		Expect(rec.Drain()).To(Equal(none()))
		Expect(log.Drain()).To(Equal(noSnapshots()))

		Expect(rec.Violations()).To(BeEmpty())
		h.stop(observer, fetcher)
	})

	It("should compose selectors on a collection view", func() {
		v, err := h.source.Filter(selector.MustNew(map[string]any{"x": map[string]any{"$gt": 0}}))
		Expect(err).NotTo(HaveOccurred())
		v, err = v.Filter(selector.MustNew(map[string]any{"y": "a"}))
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeAssignableToTypeOf(&CollectionView{}))

		h.insert("id", "1", "x", 1, "y", "a")
		h.insert("id", "2", "x", 1, "y", "b")
		h.insert("id", "3", "x", -1, "y", "a")
		Expect(fetch(v)).To(Equal([]document.Document{{"id": "1", "x": int64(1), "y": "a"}}))
	})

	It("should return predicate errors to the caller", func() {
		boom := errors.New("boom")
		v, err := NewFilter(h.source, PredicateFunc(func(document.Document) (bool, error) { return false, boom }))
		Expect(err).NotTo(HaveOccurred())
		_, err = v.Observe(feed.Callbacks{})
		Expect(err).NotTo(HaveOccurred())
		_, err = h.collection.Insert(doc("id", "1"))
		Expect(errors.Is(err, boom)).To(BeTrue())
	})

	It("should refuse a nil predicate", func() {
		_, err := NewFilter(h.source, nil)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Map", func() {
	It("should transform documents and suppress invisible changes", func() {
		h := newHarness()
		v, err := h.source.Map(func(d document.Document) (document.Document, error) {
			x, _ := document.AsInt(d["x"])
			return D{"x": x * x}, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeAssignableToTypeOf(&MapView{}))

		h.insert("id", "1", "x", 2)
		observer, rec := h.observe(v)
		fetcher, log := h.autoFetch(v)
		Expect(rec.Drain()).To(Equal([]feed.Event{added(D{"id": "1", "x": int64(4)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(4)}})))

		h.insert("id", "2", "x", 3)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{added(D{"id": "2", "x": int64(9)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(4)}, {"id": "2", "x": int64(9)}})))

		h.set("1", "x", 1)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{changed(D{"id": "1", "x": int64(1)}, D{"id": "1", "x": int64(4)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(1)}, {"id": "2", "x": int64(9)}})))

		h.set("1", "x", -1)
		h.flush()
		Expect(rec.Drain()).To(Equal(none()))
		Expect(log.Drain()).To(Equal(noSnapshots()))

		h.remove("2")
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{removed(D{"id": "2", "x": int64(9)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(1)}})))

		h.stop(observer, fetcher)
	})

	It("should not suppress changes of large integers", func() {
		const big = int64(1) << 53
		h := newHarness()
		v, err := h.source.Omit("y")
		Expect(err).NotTo(HaveOccurred())
		h.insert("id", "1", "x", big, "y", 0)
		observer, rec := h.observe(v)
		rec.Drain()

		h.set("1", "x", big+1)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{changed(D{"id": "1", "x": big + 1}, D{"id": "1", "x": big})}))

		h.set("1", "x", float64(big+2))
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{
			changed(D{"id": "1", "x": float64(big + 2)}, D{"id": "1", "x": big + 1})}))

		observer.Stop()
	})

	It("should keep the identifier of the input", func() {
		h := newHarness()
		v, err := h.source.Map(func(document.Document) (document.Document, error) {
			return D{"id": "other", "y": 1}, nil
		})
		Expect(err).NotTo(HaveOccurred())
		h.insert("id", "1")
		Expect(fetch(v)).To(Equal([]document.Document{{"id": "1", "y": int64(1)}}))
	})
})

var _ = Describe("Pick and Omit", func() {
	var (
		h   *harness
		src View
	)

	BeforeEach(func() {
		h = newHarness()
		cur, err := h.collection.Find(nil, store.FindOptions{})
		Expect(err).NotTo(HaveOccurred())
		src, err = NewCursorView(h.env, cur)
		Expect(err).NotTo(HaveOccurred())
	})

	check := func(v View) {
		h.insert("id", "1", "x", 1, "y", 2)
		observer, rec := h.observe(v)
		fetcher, log := h.autoFetch(v)
		Expect(rec.Drain()).To(Equal([]feed.Event{added(D{"id": "1", "x": int64(1)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(1)}})))

		h.insert("id", "2", "x", 2, "y", 3)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{added(D{"id": "2", "x": int64(2)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(1)}, {"id": "2", "x": int64(2)}})))

		h.set("1", "x", 3, "y", 4)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{changed(D{"id": "1", "x": int64(3)}, D{"id": "1", "x": int64(1)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(3)}, {"id": "2", "x": int64(2)}})))

		h.set("1", "y", -2)
		h.flush()
		Expect(rec.Drain()).To(Equal(none()))
		Expect(log.Drain()).To(Equal(noSnapshots()))

		h.remove("2")
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{removed(D{"id": "2", "x": int64(2)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(3)}})))

		h.stop(observer, fetcher)
	}

	It("should keep whitelisted fields", func() {
		v, err := src.Pick("x")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeAssignableToTypeOf(&PickView{}))
		check(v)
	})

	It("should drop blacklisted fields", func() {
		v, err := src.Omit("y")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeAssignableToTypeOf(&OmitView{}))
		check(v)
	})

	It("should refuse the identifier and nested paths", func() {
		_, err := src.Pick("id")
		Expect(errors.Is(err, selector.ErrIDField)).To(BeTrue())
		_, err = src.Omit("id")
		Expect(errors.Is(err, selector.ErrIDField)).To(BeTrue())
		_, err = src.Pick("a.b")
		Expect(errors.Is(err, selector.ErrPathSeparator)).To(BeTrue())
	})

	It("should collapse chained projections", func() {
		p, err := src.Pick("x", "y", "z")
		Expect(err).NotTo(HaveOccurred())
		pp, err := p.Pick("y", "z", "w")
		Expect(err).NotTo(HaveOccurred())
		Expect(pp.(*PickView).fields).To(Equal([]string{"y", "z"}))
		Expect(pp.(*PickView).upstream).To(BeIdenticalTo(src))

		po, err := pp.Omit("z")
		Expect(err).NotTo(HaveOccurred())
		Expect(po.(*PickView).fields).To(Equal([]string{"y"}))

		o, err := src.Omit("x")
		Expect(err).NotTo(HaveOccurred())
		oo, err := o.Omit("y")
		Expect(err).NotTo(HaveOccurred())
		Expect(oo.(*OmitView).fields).To(ConsistOf("x", "y"))

		op, err := oo.Pick("x", "z")
		Expect(err).NotTo(HaveOccurred())
		Expect(op.(*PickView).fields).To(Equal([]string{"z"}))

		same, err := o.Omit()
		Expect(err).NotTo(HaveOccurred())
		Expect(same).To(BeIdenticalTo(o))
	})

	It("should filter then project", func() {
		h.insert("id", "1", "x", 1, "y", 2)
		f, err := src.Filter(selector.MustNew(map[string]any{"x": map[string]any{"$gt": 0}}))
		Expect(err).NotTo(HaveOccurred())
		v, err := f.Pick("x")
		Expect(err).NotTo(HaveOccurred())
		Expect(fetch(v)).To(Equal([]document.Document{{"id": "1", "x": int64(1)}}))

		rec := testutils.NewRecorder(h.tracker)
		_, err = v.ObserveAfter(rec.Callbacks())
		Expect(err).NotTo(HaveOccurred())

		h.set("1", "y", 3)
		Expect(rec.Drain()).To(Equal(none()))

		h.set("1", "x", -1)
		Expect(rec.Drain()).To(Equal([]feed.Event{removed(D{"id": "1", "x": int64(1)})}))
	})
})

var _ = Describe("AddFields", func() {
	It("should add computed fields", func() {
		h := newHarness()
		v, err := h.source.AddFields(map[string]FieldFunc{
			"xSquared": func(d document.Document) (any, error) {
				x, _ := document.AsInt(d["x"])
				return x * x, nil
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeAssignableToTypeOf(&AddFieldsView{}))

		h.insert("id", "1", "x", 2)
		observer, rec := h.observe(v)
		fetcher, log := h.autoFetch(v)
		Expect(rec.Drain()).To(Equal([]feed.Event{added(D{"id": "1", "x": int64(2), "xSquared": int64(4)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(2), "xSquared": int64(4)}})))

		h.insert("id", "2", "x", 3)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{added(D{"id": "2", "x": int64(3), "xSquared": int64(9)})}))
		Expect(log.Drain()).To(HaveLen(1))

		h.set("1", "x", 1)
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{changed(
			D{"id": "1", "x": int64(1), "xSquared": int64(1)},
			D{"id": "1", "x": int64(2), "xSquared": int64(4)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{
			{"id": "1", "x": int64(1), "xSquared": int64(1)},
			{"id": "2", "x": int64(3), "xSquared": int64(9)},
		})))

		h.remove("2")
		h.flush()
		Expect(rec.Drain()).To(Equal([]feed.Event{removed(D{"id": "2", "x": int64(3), "xSquared": int64(9)})}))
		Expect(log.Drain()).To(Equal(snapshots([]D{{"id": "1", "x": int64(1), "xSquared": int64(1)}})))

		h.stop(observer, fetcher)
	})

	It("should refuse to compute the identifier", func() {
		h := newHarness()
		_, err := h.source.AddFields(map[string]FieldFunc{
			"id": func(document.Document) (any, error) { return "x", nil },
		})
		Expect(errors.Is(err, selector.ErrIDField)).To(BeTrue())
	})

	It("should return the view itself when no field is added", func() {
		h := newHarness()
		v, err := h.source.AddFields(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeIdenticalTo(h.source))
	})
})
