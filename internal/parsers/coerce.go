package parsers

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var priceDigits = regexp.MustCompile(`(\d[\d,]*\.?\d*)`)

func stringField(entry map[string]any, key string) string {
	s, _ := entry[key].(string)
	return strings.TrimSpace(s)
}

// coerceDecimal accepts JSON numbers and currency-ish strings ("$73,194.00").
// Zero is a legal value here; some feeds price unannounced stock at 0.
func coerceDecimal(v any) *decimal.Decimal {
	switch value := v.(type) {
	case nil:
		return nil
	case float64:
		d := decimal.NewFromFloat(value)
		return &d
	case int:
		d := decimal.NewFromInt(int64(value))
		return &d
	case string:
		m := priceDigits.FindStringSubmatch(value)
		if m == nil {
			return nil
		}
		d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			return nil
		}
		return &d
	}
	return nil
}

// positiveCurrency parses a "$64,464" style string, rejecting anything that
// is not a string or not strictly positive.
func positiveCurrency(v any) *decimal.Decimal {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	stripped := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "$", ""), ",", ""))
	if stripped == "" {
		return nil
	}
	d, err := decimal.NewFromString(stripped)
	if err != nil || !d.IsPositive() {
		return nil
	}
	return &d
}

// positiveNumber accepts numeric JSON values and numeric strings, rejecting
// zero and negatives. Feeds use 0 to mean "call for price".
func positiveNumber(v any) *decimal.Decimal {
	switch value := v.(type) {
	case nil:
		return nil
	case float64:
		if value <= 0 {
			return nil
		}
		d := decimal.NewFromFloat(value)
		return &d
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return nil
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || f <= 0 {
			return nil
		}
		d := decimal.NewFromFloat(f)
		return &d
	}
	return nil
}

func coerceYear(v any) *int {
	switch value := v.(type) {
	case float64:
		year := int(value)
		return &year
	case string:
		year, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil
		}
		return &year
	}
	return nil
}
