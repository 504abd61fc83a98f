package ideator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatCurrency renders an amount in trillion / billion / ten-thousand bands
// for prompts and reports. It never feeds back into numeric fields.
func FormatCurrency(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	switch {
	case v >= 1e12:
		return sign + trimFloat(v/1e12) + " trillion"
	case v >= 1e9:
		return sign + trimFloat(v/1e9) + " billion"
	case v >= 1e4:
		return sign + trimFloat(v/1e4) + " ten-thousand"
	default:
		return sign + groupThousands(int64(math.Round(v)))
	}
}

func trimFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 1, 64)
	s = strings.TrimSuffix(s, ".0")
	if i := strings.IndexByte(s, '.'); i < 0 {
		n, _ := strconv.ParseInt(s, 10, 64)
		return groupThousands(n)
	}
	return s
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%s%%", strconv.FormatFloat(v, 'f', -1, 64))
}
