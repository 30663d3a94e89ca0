package pipeline

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/liveview/pkg/document"
)

var _ = Describe("Expression", func() {
	doc := document.Document{
		"id":   "m1",
		"home": "Arsenal",
		"hg":   int64(2),
		"ag":   int64(1),
		"rate": 0.5,
		"meta": map[string]any{"round": int64(3), "tags": []any{"derby"}},
	}

	eval := func(v any) any {
		e, err := NewExpression(v)
		Expect(err).NotTo(HaveOccurred())
		ret, err := e.Evaluate(doc)
		Expect(err).NotTo(HaveOccurred())
		return ret
	}

	It("should evaluate literals and paths", func() {
		Expect(eval("plain")).To(Equal("plain"))
		Expect(eval(3)).To(Equal(int64(3)))
		Expect(eval(map[string]any{"a": 1, "b": 2})).To(Equal(map[string]any{"a": int64(1), "b": int64(2)}))
		Expect(eval("$.home")).To(Equal("Arsenal"))
		Expect(eval("$.meta.round")).To(Equal(int64(3)))
		Expect(eval("$.meta.tags[0]")).To(Equal("derby"))
		Expect(eval("$.missing")).To(BeNil())
		Expect(eval("$.")).To(Equal(doc))
	})

	It("should not leak references into the document", func() {
		v := eval("$.meta").(map[string]any)
		v["round"] = int64(4)
		Expect(doc["meta"].(map[string]any)["round"]).To(Equal(int64(3)))
	})

	It("should do exact integer arithmetic", func() {
		Expect(eval(map[string]any{"@add": []any{"$.hg", "$.ag", 1}})).To(Equal(int64(4)))
		Expect(eval(map[string]any{"@sub": []any{"$.ag", "$.hg"}})).To(Equal(int64(-1)))
		Expect(eval(map[string]any{"@mul": []any{3, "$.hg"}})).To(Equal(int64(6)))
		Expect(eval(map[string]any{"@mul": []any{"$.rate", "$.hg"}})).To(Equal(1.0))
		Expect(eval(map[string]any{"@add": []any{"$.rate", 1}})).To(Equal(1.5))
	})

	It("should compare and combine", func() {
		Expect(eval(map[string]any{"@gt": []any{"$.hg", "$.ag"}})).To(BeTrue())
		Expect(eval(map[string]any{"@lte": []any{"$.hg", "$.ag"}})).To(BeFalse())
		Expect(eval(map[string]any{"@gt": []any{"$.home", 1}})).To(BeFalse())
		Expect(eval(map[string]any{"@eq": []any{"$.hg", 2.0}})).To(BeTrue())
		Expect(eval(map[string]any{"@ne": []any{"$.home", "Chelsea"}})).To(BeTrue())
		Expect(eval(map[string]any{"@and": []any{true, map[string]any{"@not": false}}})).To(BeTrue())
		Expect(eval(map[string]any{"@or": []any{false, false}})).To(BeFalse())
		Expect(eval(map[string]any{"@exists": "$.meta.round"})).To(BeTrue())
		Expect(eval(map[string]any{"@exists": "$.meta.week"})).To(BeFalse())
		Expect(eval(map[string]any{"@cond": []any{map[string]any{"@lt": []any{"$.hg", "$.ag"}}, "L", "W"}})).To(Equal("W"))
		Expect(eval(map[string]any{"@concat": []any{"$.home", "-", "$.id"}})).To(Equal("Arsenal-m1"))
	})

	It("should reject malformed expressions", func() {
		for _, bad := range []any{
			map[string]any{"@pow": []any{1, 2}},
			map[string]any{"@sub": []any{1}},
			map[string]any{"@cond": []any{true, 1}},
			map[string]any{"@add": []any{}},
			"$[",
			func() {},
		} {
			_, err := NewExpression(bad)
			Expect(err).To(HaveOccurred())
		}
	})

	It("should report type errors on evaluation", func() {
		for _, bad := range []any{
			map[string]any{"@add": []any{"$.home", 1}},
			map[string]any{"@mul": []any{"$.home", 1}},
			map[string]any{"@not": "$.home"},
			map[string]any{"@concat": []any{"$.hg"}},
			map[string]any{"@exists": "x"},
		} {
			e, err := NewExpression(bad)
			Expect(err).NotTo(HaveOccurred())
			_, err = e.Evaluate(doc)
			Expect(err).To(HaveOccurred())
		}
	})

	It("should evaluate field sets", func() {
		f, err := NewFields(map[string]any{"team": "$.home", "gd": map[string]any{"@sub": []any{"$.hg", "$.ag"}}})
		Expect(err).NotTo(HaveOccurred())
		out, err := f.Evaluate(doc)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(document.Document{"team": "Arsenal", "gd": int64(1)}))

		_, err = NewFields(map[string]any{"bad": map[string]any{"@nope": 1}})
		Expect(err).To(HaveOccurred())
	})

	It("should read JSONPaths", func() {
		v, err := GetJSONPathExp("$.meta.round", doc)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int64(3)))
		_, err = GetJSONPathExp("$[", doc)
		Expect(err).To(HaveOccurred())
	})
})
