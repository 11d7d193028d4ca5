package template

import (
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// currencySymbols holds the pt-BR symbols of the currencies proposals are priced in
var currencySymbols = map[string]string{
	"BRL": "R$",
	"USD": "US$",
	"EUR": "€",
	"GBP": "£",
}

// formatCurrency renders value the way pt-BR formats currency: R$ 1.234,50,
// with a non-breaking space after the symbol
func formatCurrency(value float64, code string) string {
	symbol, ok := currencySymbols[code]
	if !ok {
		symbol = code
	}

	sign := ""
	if value < 0 {
		sign = "-"
		value = math.Abs(value)
	}

	p := message.NewPrinter(language.BrazilianPortuguese)
	return sign + symbol + "\u00a0" + p.Sprintf("%.2f", value)
}

// dateLayouts are the string forms accepted by the date helper
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// parseDate reads a time.Time, an ISO date string, or epoch milliseconds
func parseDate(value interface{}) (time.Time, bool) {
	switch v := indirect(value).(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return v, !v.IsZero()
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}

	if ms, ok := toNumber(value); ok && !isSpecial(ms) {
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	return time.Time{}, false
}

// formatDate substitutes the first dd, MM and yyyy tokens of format
func formatDate(t time.Time, format string) string {
	out := strings.Replace(format, "dd", pad2(t.Day()), 1)
	out = strings.Replace(out, "MM", pad2(int(t.Month())), 1)
	out = strings.Replace(out, "yyyy", strconv.Itoa(t.Year()), 1)
	return out
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
