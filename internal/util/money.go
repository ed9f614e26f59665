// Package util provides money and calendar helpers shared by the ledger.
package util

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SharesPerContract is the board-lot size of one equity option contract.
const SharesPerContract = 100

// DisplayPlaces is the number of decimal places used when money leaves the service.
const DisplayPlaces = 2

var hundred = decimal.NewFromInt(100)

// Shares returns the number of underlying shares controlled by contracts.
func Shares(contracts int) int {
	return contracts * SharesPerContract
}

// PerContract scales a per-share amount to the full contract notional:
// perShare × contracts × 100.
func PerContract(perShare decimal.Decimal, contracts int) decimal.Decimal {
	return perShare.Mul(decimal.NewFromInt(int64(Shares(contracts))))
}

// Percent returns part/whole × 100, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

// Display rounds an amount for presentation. Sums are never rounded before this point.
func Display(d decimal.Decimal) decimal.Decimal {
	return d.Round(DisplayPlaces)
}

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.05, 1.27 becomes 1.25. Ties round away from zero.
func RoundToTick(x, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return x
	}
	return x.Div(tick).Round(0).Mul(tick)
}

// ParseMoney parses a user-supplied amount such as "1.25", "$1,250.50" or " 0.65 ".
func ParseMoney(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

// Sum adds a list of amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
