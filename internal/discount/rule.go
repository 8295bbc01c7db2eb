package discount

import (
	"regexp"
	"strconv"
)

// Kind discriminates the parsed rule variants.
type Kind int

const (
	// KindNone means the description matched no known deal grammar.
	KindNone Kind = iota
	// KindBuyNGetMFree grants M free units per complete set of N+M.
	KindBuyNGetMFree
	// KindBuyNGetPercentOff discounts a percentage on units beyond the first N.
	KindBuyNGetPercentOff
)

// Rule is the structured form of a free-text deal description.
type Rule struct {
	Kind    Kind
	Buy     int
	Free    int
	Percent int
}

// The two recognised deal grammars. A description must match in full;
// anything else is treated as carrying no discount.
var (
	buyNGetMFreePattern   = regexp.MustCompile(`(?i)^Buy (\d+) Get (\d+) Free$`)
	buyNGetPercentPattern = regexp.MustCompile(`(?i)^Buy (\d+) Get (\d+)% off on the next$`)
)

// Parse converts a deal description into a Rule. It is total: text that
// matches neither grammar yields a Rule with KindNone.
func Parse(description string) Rule {
	if m := buyNGetMFreePattern.FindStringSubmatch(description); m != nil {
		return Rule{
			Kind: KindBuyNGetMFree,
			Buy:  mustAtoi(m[1]),
			Free: mustAtoi(m[2]),
		}
	}
	if m := buyNGetPercentPattern.FindStringSubmatch(description); m != nil {
		return Rule{
			Kind:    KindBuyNGetPercentOff,
			Buy:     mustAtoi(m[1]),
			Percent: mustAtoi(m[2]),
		}
	}
	return Rule{Kind: KindNone}
}

func mustAtoi(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		// The capture groups only admit digits.
		panic(err)
	}
	return n
}
