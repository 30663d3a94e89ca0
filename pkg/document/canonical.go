package document

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/json"
)

// CanonicalKey returns a deterministic string for a value such that two values have the same key
// iff they are DeepEqual. Field order is irrelevant (object keys are serialized sorted). Numbers
// are keyed exactly: an integral float64 inside the int64 range shares the key of that int64, -0
// folds into 0 and every NaN folds into a single key.
//
// Every scalar is encoded as a JSON string carrying a kind tag ("i:42", "f:0.5", "f:NaN",
// "s:abc", "o:<hex>", "b:true", "z:"), so no nested document or list can produce the key of a
// scalar.
func CanonicalKey(v any) (string, error) {
	canonical, err := toCanonicalForm(v)
	if err != nil {
		return "", err
	}

	bytes, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value to canonical JSON: %w", err)
	}

	return string(bytes), nil
}

// toCanonicalForm recursively replaces scalars with their tagged form.
func toCanonicalForm(val any) (any, error) {
	switch v := val.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, subVal := range v {
			canonical, err := toCanonicalForm(subVal)
			if err != nil {
				return nil, fmt.Errorf("failed to canonicalize field %q: %w", k, err)
			}
			result[k] = canonical
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, subVal := range v {
			canonical, err := toCanonicalForm(subVal)
			if err != nil {
				return nil, fmt.Errorf("failed to canonicalize list element at index %d: %w", i, err)
			}
			result[i] = canonical
		}
		return result, nil

	case int64:
		return "i:" + strconv.FormatInt(v, 10), nil

	case float64:
		if i, ok := exactInt(v); ok {
			return "i:" + strconv.FormatInt(i, 10), nil
		}
		if math.IsNaN(v) {
			return "f:NaN", nil
		}
		return "f:" + strconv.FormatFloat(v, 'g', -1, 64), nil

	case string:
		return "s:" + v, nil

	case bool:
		return "b:" + strconv.FormatBool(v), nil

	case nil:
		return "z:", nil

	case ObjectID:
		return "o:" + v.Hex(), nil

	default:
		n, err := normalize(v)
		if err != nil {
			return nil, err
		}
		return toCanonicalForm(n)
	}
}

// Compare defines a total order over values, used by sort specifications and comparison
// selectors. Values of different kinds order by kind: null < numbers < strings < documents <
// lists < ObjectIDs < booleans. NaN sorts below every other number.
func Compare(a, b any) int {
	ka, kb := Kind(a), Kind(b)
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}

	switch ka {
	case KindNull, KindInvalid:
		return 0
	case KindNumber:
		return compareNumbers(a, b)
	case KindString:
		return strings.Compare(a.(string), b.(string))
	case KindBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case KindObjectID:
		oa, ob := a.(ObjectID), b.(ObjectID)
		return strings.Compare(string(oa[:]), string(ob[:]))
	case KindList:
		la, lb := a.([]any), b.([]any)
		for i := 0; i < len(la) && i < len(lb); i++ {
			if c := Compare(la[i], lb[i]); c != 0 {
				return c
			}
		}
		return len(la) - len(lb)
	case KindDocument:
		da, db := a.(map[string]any), b.(map[string]any)
		ka, kb := Keys(da), Keys(db)
		for i := 0; i < len(ka) && i < len(kb); i++ {
			if c := strings.Compare(ka[i], kb[i]); c != 0 {
				return c
			}
			if c := Compare(da[ka[i]], db[kb[i]]); c != 0 {
				return c
			}
		}
		return len(ka) - len(kb)
	}
	return 0
}
