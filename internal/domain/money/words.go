package money

import (
	"fmt"
	"strings"
)

var (
	ones = []string{"", "ONE", "TWO", "THREE", "FOUR", "FIVE", "SIX", "SEVEN", "EIGHT", "NINE",
		"TEN", "ELEVEN", "TWELVE", "THIRTEEN", "FOURTEEN", "FIFTEEN", "SIXTEEN", "SEVENTEEN", "EIGHTEEN", "NINETEEN"}
	tens   = []string{"", "", "TWENTY", "THIRTY", "FORTY", "FIFTY", "SIXTY", "SEVENTY", "EIGHTY", "NINETY"}
	scales = []string{"", "THOUSAND", "MILLION", "BILLION", "TRILLION", "QUADRILLION"}
)

// Words spells an amount the way it is printed on a check:
// 4075.00 -> "FOUR THOUSAND SEVENTY FIVE DOLLARS AND 00/100".
func Words(c Cents) string {
	// magnitude in uint64 so MinInt64 negates cleanly
	v := uint64(c)
	prefix := ""
	if c < 0 {
		prefix = "MINUS "
		v = uint64(-(c + 1)) + 1
	}
	dollars := v / 100
	cents := v % 100
	if dollars == 0 {
		return fmt.Sprintf("%sZERO DOLLARS AND %02d/100", prefix, cents)
	}

	var groups []string
	for scale := 0; dollars > 0; scale++ {
		chunk := dollars % 1000
		dollars /= 1000
		if chunk == 0 {
			continue
		}
		words := hundredsToWords(int64(chunk))
		if scales[scale] != "" {
			words += " " + scales[scale]
		}
		groups = append([]string{words}, groups...)
	}
	return fmt.Sprintf("%s%s DOLLARS AND %02d/100", prefix, strings.Join(groups, " "), cents)
}

func hundredsToWords(n int64) string {
	var parts []string
	if n >= 100 {
		parts = append(parts, ones[n/100], "HUNDRED")
		n %= 100
	}
	switch {
	case n >= 20:
		parts = append(parts, tens[n/10])
		if n%10 != 0 {
			parts = append(parts, ones[n%10])
		}
	case n > 0:
		parts = append(parts, ones[n])
	}
	return strings.Join(parts, " ")
}
