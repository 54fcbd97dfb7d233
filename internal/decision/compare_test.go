package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

func TestCompare(t *testing.T) {
	num := domain.NumberPtr
	str := domain.StringPtr

	tests := []struct {
		name   string
		op     domain.Operator
		left   domain.Value
		right  *domain.Value
		right2 *domain.Value
		want   bool
	}{
		{"greater true", domain.OpGreater, domain.Number(450), num(440), nil, true},
		{"greater equal edge", domain.OpGreater, domain.Number(440), num(440), nil, false},
		{"greater or equal edge", domain.OpGreaterOrEqual, domain.Number(440), num(440), nil, true},
		{"less", domain.OpLess, domain.Number(430), num(440), nil, true},
		{"less or equal", domain.OpLessOrEqual, domain.Number(441), num(440), nil, false},
		{"equal numbers", domain.OpEqual, domain.Number(1.5), num(1.5), nil, true},
		{"not equal numbers", domain.OpNotEqual, domain.Number(1.5), num(2), nil, true},
		{"equal strings", domain.OpEqual, domain.String("Monday"), str("Monday"), nil, true},
		{"strings are case sensitive", domain.OpEqual, domain.String("monday"), str("Monday"), nil, false},
		{"mixed kinds never equal", domain.OpEqual, domain.Number(1), str("1"), nil, false},
		{"mixed kinds not equal", domain.OpNotEqual, domain.Number(1), str("1"), nil, true},
		{"between inside", domain.OpBetween, domain.Number(5), num(1), num(10), true},
		{"between lower bound", domain.OpBetween, domain.Number(1), num(1), num(10), true},
		{"between upper bound", domain.OpBetween, domain.Number(10), num(1), num(10), true},
		{"between outside", domain.OpBetween, domain.Number(11), num(1), num(10), false},
		{"between swapped bounds", domain.OpBetween, domain.Number(5), num(10), num(1), true},
		{"between swapped outside", domain.OpBetween, domain.Number(0), num(10), num(1), false},
		{"between strings", domain.OpBetween, domain.String("m"), str("a"), str("z"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compare(tt.op, tt.left, tt.right, tt.right2)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompareErrors(t *testing.T) {
	_, err := Compare(domain.OpGreater, domain.Number(1), nil, nil)
	assert.ErrorIs(t, err, domain.ErrMissingOperand)

	_, err = Compare(domain.OpBetween, domain.Number(1), domain.NumberPtr(0), nil)
	assert.ErrorIs(t, err, domain.ErrMissingOperand)

	_, err = Compare(domain.OpGreater, domain.Number(1), domain.StringPtr("a"), nil)
	assert.ErrorIs(t, err, domain.ErrTypeMismatch)

	_, err = Compare(domain.Operator("roughly"), domain.Number(1), domain.NumberPtr(1), nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperator)
}

func TestBetweenIsSymmetricInBounds(t *testing.T) {
	for x := -5.0; x <= 15; x++ {
		a, err := Compare(domain.OpBetween, domain.Number(x), domain.NumberPtr(2), domain.NumberPtr(8))
		require.NoError(t, err)
		b, err := Compare(domain.OpBetween, domain.Number(x), domain.NumberPtr(8), domain.NumberPtr(2))
		require.NoError(t, err)
		assert.Equal(t, a, b, "x=%v", x)
	}
}
