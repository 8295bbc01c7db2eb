package pricing

import (
	"fmt"

	"github.com/elstore/backend-elstore/internal/discount"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// Apply computes the price of one basket line under the given rule. It
// returns whether the rule counted as applied and the final line price.
//
// BuyNGetMFree reports applied even when the quantity is below one complete
// set and no units end up free. That mirrors the established receipt
// behavior and callers rely on it when building the applied-deal set.
func Apply(rule discount.Rule, unitPrice Money, qty int) (bool, Money) {
	if qty <= 0 {
		return false, 0
	}
	full := unitPrice * Money(qty)

	switch rule.Kind {
	case discount.KindBuyNGetMFree:
		group := rule.Buy + rule.Free
		if group <= 0 {
			return true, full
		}
		sets := qty / group
		freeUnits := sets * rule.Free
		return true, unitPrice * Money(qty-freeUnits)

	case discount.KindBuyNGetPercentOff:
		if qty <= rule.Buy {
			return false, full
		}
		discountable := (qty - rule.Buy) / (rule.Buy + 1)
		off := unitPrice * Money(discountable) * Money(rule.Percent) / 100
		return true, full - off

	default:
		return false, full
	}
}

// FormatMoney renders minor units as a decimal amount for receipt text.
func FormatMoney(amount Money) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
