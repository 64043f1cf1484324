package orders

import (
	"fmt"
	"time"
)

// Period returns the YYYYMM numbering period of t in UTC.
func Period(t time.Time) string {
	return t.UTC().Format("200601")
}

// FormatNumber renders ORD-YYYYMM-NNNN. Sequences past 9999 keep all their digits.
func FormatNumber(period string, seq int64) string {
	return fmt.Sprintf("ORD-%s-%04d", period, seq)
}
