package tariff

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CurrencyBDT is the currency code for Bangladeshi taka.
const CurrencyBDT = "BDT"

// Describe renders the slab table in the compact form shown next to the
// daily cost, e.g. "0-75@4.5, 76-200@5.5, 200+@11".
func (s Schedule) Describe() string {
	parts := make([]string, 0, len(s.Slabs))
	var upper float64
	for i, slab := range s.Slabs {
		lower := upper
		if i > 0 && lower == math.Trunc(lower) {
			lower++
		}
		if slab.IsUnbounded() {
			parts = append(parts, fmt.Sprintf("%s+@%s", formatNumber(upper), formatNumber(slab.Rate)))
			break
		}
		upper += slab.Capacity
		parts = append(parts, fmt.Sprintf("%s-%s@%s", formatNumber(lower), formatNumber(upper), formatNumber(slab.Rate)))
	}
	return strings.Join(parts, ", ")
}

// FormatCost renders a cost with two decimals. Rounding happens here and
// never inside the calculator.
func FormatCost(cost float64) string {
	return strconv.FormatFloat(cost, 'f', 2, 64)
}

// RoundCost rounds a cost to whole currency units for charts.
func RoundCost(cost float64) int64 {
	return int64(math.Round(cost))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
