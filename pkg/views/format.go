package views

import (
	"fmt"
	"math"
	"strings"
)

// FormatUSD renders an amount for display. Sub-cent amounts keep up to six
// decimals so per-token prices stay readable.
func FormatUSD(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	if v == 0 || v >= 0.01 {
		return fmt.Sprintf("%s$%.2f", sign, v)
	}
	s := strings.TrimRight(fmt.Sprintf("%.6f", v), "0")
	if s == "0." {
		// below display precision
		return sign + "$0.00"
	}
	return sign + "$" + s
}

// FormatPercent renders a percentage with one decimal.
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// roundPrice trims float noise from customer-facing amounts.
func roundPrice(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func percentOf(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(part/whole*1000) / 10
}
