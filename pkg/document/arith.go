package document

import (
	"cmp"
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned when integer arithmetic leaves the int64 range.
var ErrOverflow = errors.New("integer overflow")

// AsFloat converts a number to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// AsInt converts an integral number to int64.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return exactInt(n)
	}
	return 0, false
}

// exactInt returns the int64 equal to f. It fails for fractions, NaN, infinities and values
// outside the int64 range.
func exactInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < -(1<<63) || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

// Add adds two numbers. The result stays int64 when both operands are integers so that repeated
// addition and subtraction never drifts; leaving the int64 range is an ErrOverflow. A missing
// (nil) operand counts as zero.
func Add(a, b any) (any, error) {
	if a == nil {
		a = int64(0)
	}
	if b == nil {
		b = int64(0)
	}
	if ia, ok := a.(int64); ok {
		if ib, ok := b.(int64); ok {
			c := ia + ib
			if (ia^c)&(ib^c) < 0 {
				return nil, fmt.Errorf("%w: %d + %d", ErrOverflow, ia, ib)
			}
			return c, nil
		}
	}
	fa, okA := AsFloat(a)
	fb, okB := AsFloat(b)
	if !okA || !okB {
		return nil, fmt.Errorf("cannot add non-numeric values %v (%T) and %v (%T)", a, a, b, b)
	}
	return fa + fb, nil
}

// Subtract subtracts b from a with the same typing rules as Add.
func Subtract(a, b any) (any, error) {
	if a == nil {
		a = int64(0)
	}
	if b == nil {
		b = int64(0)
	}
	if ia, ok := a.(int64); ok {
		if ib, ok := b.(int64); ok {
			c := ia - ib
			if (ia^ib)&(ia^c) < 0 {
				return nil, fmt.Errorf("%w: %d - %d", ErrOverflow, ia, ib)
			}
			return c, nil
		}
	}
	fa, okA := AsFloat(a)
	fb, okB := AsFloat(b)
	if !okA || !okB {
		return nil, fmt.Errorf("cannot subtract non-numeric values %v (%T) and %v (%T)", a, a, b, b)
	}
	return fa - fb, nil
}

// Multiply multiplies two numbers with the same typing rules as Add.
func Multiply(a, b any) (any, error) {
	if ia, ok := a.(int64); ok {
		if ib, ok := b.(int64); ok {
			if ia == 0 || ib == 0 {
				return int64(0), nil
			}
			c := ia * ib
			if c/ib != ia || (ia == -1 && ib == math.MinInt64) || (ib == -1 && ia == math.MinInt64) {
				return nil, fmt.Errorf("%w: %d * %d", ErrOverflow, ia, ib)
			}
			return c, nil
		}
	}
	fa, okA := AsFloat(a)
	fb, okB := AsFloat(b)
	if !okA || !okB {
		return nil, fmt.Errorf("cannot multiply non-numeric values %v (%T) and %v (%T)", a, a, b, b)
	}
	return fa * fb, nil
}

// compareNumbers orders two normalized numbers exactly, without rounding int64 values to float64.
// NaN sorts below every other number.
func compareNumbers(a, b any) int {
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
		y, _ := b.(float64)
		return compareIntFloat(x, y)
	case float64:
		if y, ok := b.(int64); ok {
			return -compareIntFloat(y, x)
		}
		y, _ := b.(float64)
		return compareFloat(x, y)
	}
	return 0
}

func compareIntFloat(i int64, f float64) int {
	switch {
	case math.IsNaN(f):
		return 1
	case f >= 1<<63:
		return -1
	case f < -(1 << 63):
		return 1
	}
	t := math.Trunc(f)
	if c := cmp.Compare(i, int64(t)); c != 0 {
		return c
	}
	switch {
	case f > t:
		return -1
	case f < t:
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	nanA, nanB := math.IsNaN(a), math.IsNaN(b)
	switch {
	case nanA && nanB:
		return 0
	case nanA:
		return -1
	case nanB:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
