// Package document implements the document model shared by stores and views: a string-keyed map
// of JSON-like values with exactly one identifier field.
//
// Values are restricted to a tagged set of kinds (see Kind): nil, bool, numbers (int64 or
// float64), string, ordered lists ([]any), nested documents (map[string]any) and ObjectID.
// Normalize converts the remaining Go numeric types into this set and rejects everything else,
// so that code past a store boundary can switch on the kinds exhaustively.
package document

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"k8s.io/apimachinery/pkg/api/equality"
)

// IDField is the name of the identifier field.
const IDField = "id"

// Document represents an unstructured document as map[string]any.
type Document = map[string]any

// ValueKind is the tag of a document value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindNumber
	KindString
	KindDocument
	KindList
	KindObjectID
	KindBool
	KindInvalid
)

var kindNames = [...]string{"null", "number", "string", "document", "list", "objectid", "bool", "invalid"}

func (k ValueKind) String() string { return kindNames[k] }

var (
	// ErrInvalidValue is returned when a document holds a value outside the supported kinds.
	ErrInvalidValue = errors.New("unsupported document value")
	// ErrMissingID is returned for documents without an identifier.
	ErrMissingID = errors.New("document has no identifier")
)

// Kind returns the tag of a normalized value.
func Kind(v any) ValueKind {
	switch v.(type) {
	case nil:
		return KindNull
	case int64, float64:
		return KindNumber
	case string:
		return KindString
	case map[string]any:
		return KindDocument
	case []any:
		return KindList
	case ObjectID:
		return KindObjectID
	case bool:
		return KindBool
	default:
		return KindInvalid
	}
}

// New creates a document from key-value pairs.
func New(pairs ...any) (Document, error) {
	if len(pairs)%2 != 0 {
		return nil, errors.New("document.New requires an even number of arguments")
	}

	doc := make(Document, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("key at position %d must be a string", i)
		}
		doc[key] = pairs[i+1]
	}

	return Normalize(doc)
}

// Normalize returns a deep copy of the document with all values converted to the supported
// kinds: Go integer types become int64, float32 becomes float64.
func Normalize(doc Document) (Document, error) {
	v, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	return v.(Document), nil
}

// NormalizeValue is like Normalize for a single value.
func NormalizeValue(v any) (any, error) { return normalize(v) }

func normalize(val any) (any, error) {
	switch v := val.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, subVal := range v {
			n, err := normalize(subVal)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			result[k] = n
		}
		return result, nil
	case []any:
		result := make([]any, len(v))
		for i, subVal := range v {
			n, err := normalize(subVal)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = n
		}
		return result, nil
	case []string:
		result := make([]any, len(v))
		for i := range v {
			result[i] = v[i]
		}
		return result, nil
	case []map[string]any:
		result := make([]any, len(v))
		for i := range v {
			n, err := normalize(v[i])
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = n
		}
		return result, nil
	case nil, bool, string, int64, float64, ObjectID:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint:
		return foldUint(uint64(v)), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return foldUint(v), nil
	case float32:
		return float64(v), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidValue, val)
	}
}

// foldUint converts an unsigned integer to int64, or to float64 above the int64 range.
func foldUint(v uint64) any {
	if v > math.MaxInt64 {
		return float64(v)
	}
	return int64(v)
}

// ID returns the identifier of a document.
func ID(doc Document) (any, error) {
	id, ok := doc[IDField]
	if !ok || id == nil {
		return nil, ErrMissingID
	}
	return id, nil
}

// DeepCopy creates a deep copy of a document.
func DeepCopy(doc Document) Document {
	if doc == nil {
		return nil
	}
	return DeepCopyValue(doc).(Document)
}

// DeepCopyValue creates a deep copy of any nested structure.
func DeepCopyValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, subVal := range v {
			result[k] = DeepCopyValue(subVal)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, subVal := range v {
			result[i] = DeepCopyValue(subVal)
		}
		return result
	default:
		// primitives and ObjectID are values
		return v
	}
}

// DeepEqual checks if two values are equal. Numbers compare exactly by value regardless of their
// representation: int64 values never pass through float64, an integral float64 equals the int64
// of the same value, -0 equals 0 and NaN equals NaN.
func DeepEqual(a, b any) bool {
	return equality.Semantic.DeepEqual(foldNumbers(a), foldNumbers(b))
}

type nanValue struct{}

// foldNumbers folds integral float64 values into int64 and NaN into a sentinel so that
// reflection-based equality sees the value semantics.
func foldNumbers(val any) any {
	switch v := val.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, subVal := range v {
			result[k] = foldNumbers(subVal)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, subVal := range v {
			result[i] = foldNumbers(subVal)
		}
		return result
	case float64:
		if i, ok := exactInt(v); ok {
			return i
		}
		if math.IsNaN(v) {
			return nanValue{}
		}
		return v
	default:
		return v
	}
}

// Pick returns a copy of the document restricted to the given fields plus the identifier.
func Pick(doc Document, fields []string) Document {
	result := make(Document, len(fields)+1)
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			result[f] = DeepCopyValue(v)
		}
	}
	if id, ok := doc[IDField]; ok {
		result[IDField] = id
	}
	return result
}

// Omit returns a copy of the document without the given fields.
func Omit(doc Document, fields []string) Document {
	result := DeepCopy(doc)
	for _, f := range fields {
		if f == IDField {
			continue
		}
		delete(result, f)
	}
	return result
}

// Keys returns the sorted field names of a document.
func Keys(doc Document) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
