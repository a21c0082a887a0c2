package payroll

import "math"

// Round rounds a monetary amount to 3 decimal places, the sub-unit
// precision of the Kuwaiti dinar. All computed payroll figures pass through
// this before being reported or persisted.
func Round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
