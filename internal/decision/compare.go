// Package decision evaluates decision configs against a DecisionContext. It
// holds the comparison and indicator primitives, one evaluator per recipe
// kind, and the Engine that composes grouped decisions, caches results and
// keeps statistics.
package decision

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// Compare applies op to left and right. Between additionally needs right2 and
// accepts bounds in either order. Numbers compare exactly and strings compare
// case-sensitively. Mixed operand kinds are unequal under the equality
// operators and a type mismatch under every other operator.
func Compare(op domain.Operator, left domain.Value, right, right2 *domain.Value) (bool, error) {
	if right == nil {
		return false, fmt.Errorf("%w: right operand", domain.ErrMissingOperand)
	}

	switch op {
	case domain.OpEqual:
		return equal(left, *right), nil
	case domain.OpNotEqual:
		return !equal(left, *right), nil
	case domain.OpBetween:
		if right2 == nil {
			return false, fmt.Errorf("%w: between requires value2", domain.ErrMissingOperand)
		}
		lo, err := order(left, *right)
		if err != nil {
			return false, err
		}
		hi, err := order(left, *right2)
		if err != nil {
			return false, err
		}
		// lo and hi are left's ordering against each bound; left sits inside
		// the inclusive range unless it is strictly on the same side of both.
		return !(lo < 0 && hi < 0) && !(lo > 0 && hi > 0), nil
	case domain.OpGreater, domain.OpGreaterOrEqual, domain.OpLess, domain.OpLessOrEqual:
		c, err := order(left, *right)
		if err != nil {
			return false, err
		}
		switch op {
		case domain.OpGreater:
			return c > 0, nil
		case domain.OpGreaterOrEqual:
			return c >= 0, nil
		case domain.OpLess:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	default:
		return false, fmt.Errorf("%w: %q", domain.ErrUnsupportedOperator, op)
	}
}

func equal(a, b domain.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == domain.ValueString {
		return a.Str == b.Str
	}
	return a.Num == b.Num
}

// order returns -1, 0 or 1 for a relative to b.
func order(a, b domain.Value) (int, error) {
	if a.Kind != b.Kind {
		return 0, fmt.Errorf("%w: cannot order %s against %s", domain.ErrTypeMismatch, a, b)
	}
	if a.Kind == domain.ValueString {
		switch {
		case a.Str < b.Str:
			return -1, nil
		case a.Str > b.Str:
			return 1, nil
		}
		return 0, nil
	}
	if math.IsNaN(a.Num) || math.IsNaN(b.Num) {
		return 0, fmt.Errorf("%w: NaN operand", domain.ErrTypeMismatch)
	}
	switch {
	case a.Num < b.Num:
		return -1, nil
	case a.Num > b.Num:
		return 1, nil
	}
	return 0, nil
}

// describe renders a comparison for reasoning text.
func describe(op domain.Operator, left domain.Value, right, right2 *domain.Value) string {
	if right == nil {
		return fmt.Sprintf("%s %s ?", left, op)
	}
	if op == domain.OpBetween && right2 != nil {
		return fmt.Sprintf("%s between %s and %s", left, right, right2)
	}
	return fmt.Sprintf("%s %s %s", left, op, right)
}
