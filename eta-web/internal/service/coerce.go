package service

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"porter-eta/eta-web/internal/domain"
)

// TimestampLayout matches the millisecond UTC form browsers produce for ISO
// timestamps, e.g. 2024-05-01T09:30:00.000Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var (
	intPrefix   = regexp.MustCompile(`^[+-]?(0[xX][0-9a-fA-F]+|[0-9]+)`)
	floatPrefix = regexp.MustCompile(`^[+-]?(Infinity|([0-9]+\.?[0-9]*|\.[0-9]+)([eE][+-]?[0-9]+)?)`)
)

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseInt reads the longest leading integer of s, ignoring leading
// whitespace and anything after the digits ("12.7" is 12, "40abc" is 40).
// A 0x prefix selects hexadecimal. ok is false when no digits lead the text
// or the value does not fit in an int64.
func ParseInt(s string) (v int64, ok bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	m := intPrefix.FindString(s)
	if m == "" {
		return 0, false
	}

	neg := false
	switch m[0] {
	case '-':
		neg = true
		m = m[1:]
	case '+':
		m = m[1:]
	}

	base := 10
	if len(m) > 2 && (m[:2] == "0x" || m[:2] == "0X") {
		base = 16
		m = m[2:]
	}

	u, err := strconv.ParseUint(m, base, 63)
	if err != nil {
		return 0, false
	}
	if neg {
		return -int64(u), true
	}
	return int64(u), true
}

// ParseFloat reads the longest leading decimal literal of s. Text without a
// leading number yields NaN.
func ParseFloat(s string) domain.Float {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	m := floatPrefix.FindString(s)
	if m == "" {
		return domain.NaN()
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		// out-of-range literals already come back as ±Inf
		if errors.Is(err, strconv.ErrRange) {
			return domain.Float(f)
		}
		return domain.NaN()
	}
	return domain.Float(f)
}

func coerceInt(s string) domain.Int {
	v, ok := ParseInt(s)
	if !ok {
		return domain.Int{}
	}
	return domain.NewInt(v)
}

// Coerce converts the editable record into the request payload. created_at is
// always taken from now; the value held in the form is ignored. Malformed
// numbers are carried as NaN/invalid and encode as null.
func Coerce(form domain.OrderForm, now time.Time) domain.OrderPayload {
	return domain.OrderPayload{
		MarketID:               ParseFloat(form.MarketID),
		StorePrimaryCategory:   form.StorePrimaryCategory,
		OrderProtocol:          ParseFloat(form.OrderProtocol),
		TotalItems:             coerceInt(form.TotalItems),
		Subtotal:               coerceInt(form.Subtotal),
		NumDistinctItems:       coerceInt(form.NumDistinctItems),
		MinItemPrice:           coerceInt(form.MinItemPrice),
		MaxItemPrice:           coerceInt(form.MaxItemPrice),
		TotalOutstandingOrders: ParseFloat(form.TotalOutstandingOrders),
		DrivingDuration:        ParseFloat(form.DrivingDuration),
		CreatedAt:              FormatTimestamp(now),
	}
}

// InvalidFields reports, per field name, the numeric fields whose text does
// not parse. Used only when strict input checking is enabled.
func InvalidFields(form domain.OrderForm) map[string]string {
	invalid := map[string]string{}
	for _, f := range domain.Fields {
		raw, _ := form.Value(f.Name)
		switch f.Kind {
		case domain.KindInt:
			if _, ok := ParseInt(raw); !ok {
				invalid[f.Name] = "must be a whole number"
			}
		case domain.KindFloat:
			if v := ParseFloat(raw); v.IsNaN() {
				invalid[f.Name] = "must be a number"
			}
		}
	}
	return invalid
}
