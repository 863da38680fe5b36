package expiry

import (
	"fmt"
	"math"
)

// Format renders seconds as m:ss. NaN, infinities and negative values
// render as 0:00.
func Format(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "0:00"
	}
	total := int64(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatSeconds is Format for whole seconds.
func FormatSeconds(seconds int) string {
	return Format(float64(seconds))
}
