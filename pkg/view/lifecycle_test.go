package view

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/liveview/internal/testutils"
	"github.com/l7mp/liveview/pkg/document"
	"github.com/l7mp/liveview/pkg/feed"
	"github.com/l7mp/liveview/pkg/selector"
	"github.com/l7mp/liveview/pkg/tracker"
)

var _ = Describe("Base", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness()
	})

	It("should refuse an implementation without observe", func() {
		_, err := New(h.env, Impl{ForEach: func(IterFunc) error { return nil }})
		Expect(errors.Is(err, ErrMissingImplementation)).To(BeTrue())
	})

	It("should refuse an implementation without enumeration", func() {
		_, err := New(h.env, Impl{
			Observe: func(feed.Callbacks) (feed.Subscription, error) { return feed.Nop, nil },
		})
		Expect(errors.Is(err, ErrMissingImplementation)).To(BeTrue())
	})

	It("should derive Observe from ObserveAfter and enumeration", func() {
		docs := []document.Document{doc("id", "a", "x", 1), doc("id", "b", "x", 2)}
		var live feed.Callbacks
		v, err := New(h.env, Impl{
			ObserveAfter: func(cb feed.Callbacks) (feed.Subscription, error) {
				live = cb
				return feed.Nop, nil
			},
			ForEachNonreactive: func(fn IterFunc) error {
				for _, d := range docs {
					if err := fn(document.DeepCopy(d)); err != nil {
						return err
					}
				}
				return nil
			},
		})
		Expect(err).NotTo(HaveOccurred())

		rec := testutils.NewRecorder(h.tracker)
		_, err = v.Observe(rec.Callbacks())
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Drain()).To(Equal([]feed.Event{testutils.Added(docs[0]), testutils.Added(docs[1])}))

		Expect(live.EmitRemoved(docs[0])).To(Succeed())
		Expect(rec.Drain()).To(Equal([]feed.Event{testutils.Removed(docs[0])}))
	})

	It("should derive ObserveAfter from Observe", func() {
		v, err := New(h.env, Impl{
			Observe:            h.source.Observe,
			ForEachNonreactive: h.source.ForEachNonreactive,
		})
		Expect(err).NotTo(HaveOccurred())
		h.insert("id", "a", "x", 1)

		rec := testutils.NewRecorder(h.tracker)
		_, err = v.ObserveAfter(rec.Callbacks())
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Drain()).To(BeEmpty())

		h.insert("id", "b", "x", 2)
		Expect(rec.Drain()).To(Equal([]feed.Event{testutils.Added(doc("id", "b", "x", 2))}))
	})

	It("should return an error raised by an observer to the mutating call", func() {
		boom := errors.New("boom")
		_, err := h.source.Observe(feed.Callbacks{
			Added: func(document.Document) error { return boom },
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = h.collection.Insert(doc("id", "a"))
		Expect(errors.Is(err, boom)).To(BeTrue())
	})
})

var _ = Describe("Lifecycle", func() {
	var (
		h *harness
		v *FilterView
	)

	BeforeEach(func() {
		h = newHarness()
		var err error
		v, err = NewFilter(h.source, selector.MustNew(map[string]any{"x": map[string]any{"$gt": 0}}))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should start lazily and suspend at the next checkpoint", func() {
		Expect(v.Lifecycle().Active()).To(BeFalse())

		keep, err := v.KeepAlive()
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Lifecycle().Active()).To(BeTrue())
		Expect(h.env.Metrics.ActiveViews()).To(Equal(int64(1)))

		keep.Stop()
		Expect(v.Lifecycle().Active()).To(BeTrue())
		h.flush()
		Expect(v.Lifecycle().Active()).To(BeFalse())
		Expect(h.env.Metrics.ActiveViews()).To(BeZero())
	})

	It("should coalesce a release and a reacquire before the checkpoint", func() {
		starts := 0
		lc := NewLifecycle("counted", h.env, func(feed.Callbacks) error { starts++; return nil }, func() {})

		keep, err := lc.KeepAlive()
		Expect(err).NotTo(HaveOccurred())
		keep.Stop()
		keep, err = lc.KeepAlive()
		Expect(err).NotTo(HaveOccurred())
		h.flush()
		Expect(lc.Active()).To(BeTrue())
		Expect(starts).To(Equal(1))

		keep.Stop()
		keep.Stop()
		Expect(lc.Refs()).To(BeZero())
		h.flush()
		Expect(lc.Active()).To(BeFalse())
	})

	It("should suspend immediately without a checkpoint", func() {
		env := Env{Metrics: h.env.Metrics}
		lc := NewLifecycle("immediate", env, func(feed.Callbacks) error { return nil }, func() {})
		keep, err := lc.KeepAlive()
		Expect(err).NotTo(HaveOccurred())
		keep.Stop()
		Expect(lc.Active()).To(BeFalse())
	})

	It("should not activate when the start fails", func() {
		boom := errors.New("boom")
		lc := NewLifecycle("failing", h.env, func(feed.Callbacks) error { return boom }, func() {})
		_, err := lc.KeepAlive()
		Expect(errors.Is(err, boom)).To(BeTrue())
		Expect(lc.Active()).To(BeFalse())
		Expect(lc.Refs()).To(BeZero())
	})

	It("should reproduce the initial set after a suspend and resume", func() {
		h.insert("id", "a", "x", 1)
		h.insert("id", "b", "x", -1)

		rec := testutils.NewRecorder(h.tracker)
		sub, err := v.Observe(rec.Callbacks())
		Expect(err).NotTo(HaveOccurred())
		cold := rec.Drain()
		Expect(cold).To(Equal([]feed.Event{testutils.Added(doc("id", "a", "x", 1))}))

		sub.Stop()
		h.flush()
		Expect(v.Lifecycle().Active()).To(BeFalse())

		_, err = v.Observe(rec.Callbacks())
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Drain()).To(Equal(cold))
	})

	It("should stop subscriptions created in a computation when it is invalidated", func() {
		h.insert("id", "a", "x", 1)
		observer, rec := h.observe(v)
		Expect(rec.Drain()).To(HaveLen(1))
		Expect(v.Lifecycle().Refs()).To(Equal(1))

		observer.Stop()
		Expect(v.Lifecycle().Refs()).To(BeZero())
		h.insert("id", "b", "x", 2)
		Expect(rec.Drain()).To(BeEmpty())
		h.flush()
		Expect(v.Lifecycle().Active()).To(BeFalse())
	})

	It("should run callbacks outside of computations", func() {
		observer, rec := h.observe(v)
		h.insert("id", "a", "x", 1)
		h.set("a", "x", 2)
		h.remove("a")
		Expect(rec.Drain()).To(HaveLen(3))
		Expect(rec.Violations()).To(BeEmpty())
		observer.Stop()
	})

	It("should re-run a computation fetching a view when the view changes", func() {
		h.insert("id", "a", "x", 1)
		runs := 0
		c, err := h.tracker.Autorun(func(*tracker.Computation) error {
			runs++
			_, err := v.Fetch()
			return err
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(runs).To(Equal(1))

		h.insert("id", "b", "x", -1)
		h.flush()
		Expect(runs).To(Equal(1))

		h.insert("id", "c", "x", 1)
		h.flush()
		Expect(runs).To(Equal(2))

		c.Stop()
		h.flush()
		Expect(v.Lifecycle().Active()).To(BeFalse())
	})
})

var _ = Describe("Explain", func() {
	It("should describe an operator chain", func() {
		h := newHarness()
		f, err := h.source.Filter(PredicateFunc(func(document.Document) (bool, error) { return true, nil }))
		Expect(err).NotTo(HaveOccurred())
		p, err := f.Pick("x")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Explain().String()).To(Equal("test.find({})\n.filter(<func>)\n.pick(x)\n"))
	})
})
