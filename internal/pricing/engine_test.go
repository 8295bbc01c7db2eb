package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elstore/backend-elstore/internal/discount"
	"github.com/elstore/backend-elstore/internal/pricing"
)

func TestApplyNoDiscount(t *testing.T) {
	applied, final := pricing.Apply(discount.Rule{Kind: discount.KindNone}, 1000, 3)
	require.False(t, applied)
	require.Equal(t, pricing.Money(3000), final)
}

func TestApplyBuyNGetMFree(t *testing.T) {
	rule := discount.Rule{Kind: discount.KindBuyNGetMFree, Buy: 1, Free: 1}

	applied, final := pricing.Apply(rule, 1000, 4)
	require.True(t, applied)
	require.Equal(t, pricing.Money(2000), final, "two complete sets, two free units")

	// Below one complete set there are no free units, yet the rule still
	// reports applied.
	applied, final = pricing.Apply(rule, 1000, 3)
	require.True(t, applied)
	require.Equal(t, pricing.Money(3000), final)
}

func TestApplyBuyNGetMFreeTruncatesSets(t *testing.T) {
	rule := discount.Rule{Kind: discount.KindBuyNGetMFree, Buy: 2, Free: 1}

	// qty 7 -> two complete sets of 3, remainder never discounted.
	applied, final := pricing.Apply(rule, 500, 7)
	require.True(t, applied)
	require.Equal(t, pricing.Money(2500), final)
}

func TestApplyBuyNGetPercentOff(t *testing.T) {
	rule := discount.Rule{Kind: discount.KindBuyNGetPercentOff, Buy: 2, Percent: 10}

	applied, final := pricing.Apply(rule, 10000, 5)
	require.True(t, applied)
	require.Equal(t, pricing.Money(49000), final, "one discountable unit at 10%")

	applied, final = pricing.Apply(rule, 10000, 2)
	require.False(t, applied, "quantity at threshold earns no discount")
	require.Equal(t, pricing.Money(20000), final)
}

func TestFormatMoney(t *testing.T) {
	require.Equal(t, "12.00", pricing.FormatMoney(1200))
	require.Equal(t, "0.05", pricing.FormatMoney(5))
	require.Equal(t, "-3.50", pricing.FormatMoney(-350))
}
