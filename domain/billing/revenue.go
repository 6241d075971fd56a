package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CoerceAmount converts a loosely typed cell value into an amount.
// Thousand separators, surrounding whitespace and common currency symbols are
// stripped from strings. Missing or invalid values become zero; this never fails.
// This is a PURE function.
func CoerceAmount(v any) decimal.Decimal {
	switch x := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return x
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero
		}
		return *x
	case int:
		return decimal.NewFromInt(int64(x))
	case int32:
		return decimal.NewFromInt32(x)
	case int64:
		return decimal.NewFromInt(x)
	case float32:
		return decimal.NewFromFloat32(x)
	case float64:
		return decimal.NewFromFloat(x)
	case string:
		return parseAmount(x)
	default:
		return decimal.Zero
	}
}

var amountNoise = strings.NewReplacer(",", "", " ", "", "\u00a0", "", "$", "", "\u20b9", "", "Rs.", "", "Rs", "", "\u20ac", "", "\u00a3", "")

func parseAmount(s string) decimal.Decimal {
	s = amountNoise.Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Total returns base + extra - discount, floored at zero.
// This is a PURE function.
func Total(base, extra, discount decimal.Decimal) decimal.Decimal {
	total := base.Add(extra).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// TotalAmount coerces its inputs with CoerceAmount and returns their Total.
// TotalAmount(10000, 2000, 500) is 11500; an over-large discount yields 0.
func TotalAmount(base, extra, discount any) decimal.Decimal {
	return Total(CoerceAmount(base), CoerceAmount(extra), CoerceAmount(discount))
}
