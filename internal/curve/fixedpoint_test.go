package curve

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c uint64
		want    uint64
		wantErr error
	}{
		{name: "exact", a: 10, b: 20, c: 5, want: 40},
		{name: "truncates", a: 10, b: 10, c: 3, want: 33},
		{name: "wide intermediate", a: math.MaxUint64, b: math.MaxUint64, c: math.MaxUint64, want: math.MaxUint64},
		{name: "fee", a: 1_000_000_000, b: 100, c: BasisPoints, want: 10_000_000},
		{name: "overflow", a: math.MaxUint64, b: 2, c: 1, wantErr: ErrArithmeticOverflow},
		{name: "zero divisor", a: 1, b: 1, c: 0, wantErr: ErrArithmeticOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDiv(tt.a, tt.b, tt.c)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckedArithmetic(t *testing.T) {
	diff, err := CheckedSub(10, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), diff)

	_, err = CheckedSub(4, 10)
	assert.ErrorIs(t, err, ErrInsufficientReserves)

	sum, err := CheckedAdd(math.MaxUint64-1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), sum)

	_, err = CheckedAdd(math.MaxUint64, 1)
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestFeeOf(t *testing.T) {
	fee, err := feeOf(999, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), fee)

	fee, err = feeOf(12345, BasisPoints)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), fee)

	_, err = feeOf(1, BasisPoints+1)
	assert.ErrorIs(t, err, ErrInvalidFee)
}
