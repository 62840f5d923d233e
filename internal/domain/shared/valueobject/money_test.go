package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRoundCents_HalfUp(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"180", "180.00"},
		{"0.005", "0.01"},
		{"0.004", "0.00"},
		{"1.125", "1.13"},
		{"952.3809523", "952.38"},
		{"2.675", "2.68"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RoundCents(d(tt.in)).StringFixed(2))
		})
	}
}

func TestFloorCents(t *testing.T) {
	tests := []struct {
		num, den string
		want     string
	}{
		{"4000", "3", "1333.33"},
		{"2000", "3", "666.66"},
		{"0.02", "3", "0.00"},
		{"500.01", "3", "166.67"},
		{"8000", "1", "8000.00"},
	}
	for _, tt := range tests {
		t.Run(tt.num+"/"+tt.den, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatAmount(FloorCents(d(tt.num), d(tt.den))))
		})
	}

	// just below a cent boundary stays below it
	assert.Equal(t, "0.09", FormatAmount(FloorCents(d("0.099999999999999999999999"), d("1"))))
}

func TestParseAmount(t *testing.T) {
	t.Run("accepts integers and cents", func(t *testing.T) {
		v, err := ParseAmount("4000")
		require.NoError(t, err)
		assert.True(t, v.Equal(d("4000")))

		v, err = ParseAmount(" 1180.50 ")
		require.NoError(t, err)
		assert.Equal(t, "1180.50", FormatAmount(v))
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := ParseAmount("12abc")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = ParseAmount("")
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = ParseAmount("1e3")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("rejects sub-cent precision", func(t *testing.T) {
		_, err := ParseAmount("10.001")
		assert.ErrorIs(t, err, ErrAmountPrecision)
	})

	t.Run("rejects negative", func(t *testing.T) {
		_, err := ParseAmount("-1")
		assert.ErrorIs(t, err, ErrNegativeAmount)
	})

	t.Run("trailing zeros beyond cents are fine", func(t *testing.T) {
		v, err := ParseAmount("10.5000")
		require.NoError(t, err)
		assert.Equal(t, "10.50", FormatAmount(v))
	})
}

func TestPercentage(t *testing.T) {
	assert.True(t, Percentage(d("0"), d("0")).IsZero())
	assert.Equal(t, "50.00", Percentage(d("4000"), d("8000")).StringFixed(2))
	assert.Equal(t, "33.33", Percentage(d("1"), d("3")).StringFixed(2))
	assert.Equal(t, "66.67", Percentage(d("2"), d("3")).StringFixed(2))
}
