package preserve

// convert.go coerces raw document values to column types.
//
// Empty input becomes NULL for every type except Text. Values that cannot be
// parsed are errors: a document with a bad value fails the whole batch
// rather than writing a partial row.

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// timestampLayouts are tried in order. The first is the API's own format.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Coerce converts raw to the Go value written for a column of type typ.
func Coerce(typ ColumnType, raw string) (any, error) {
	if typ == Text {
		return raw, nil
	}

	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}

	switch typ {
	case Integer:
		return ToInteger(s)
	case Timestamp:
		return ToTimestamp(s)
	case Decimal:
		return ToDecimal(s)
	case Bool:
		return ToBool(s)
	default:
		return nil, fmt.Errorf("unsupported column type %s", typ)
	}
}

// ToInteger parses a base-10 integer.
func ToInteger(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return n, nil
}

// ToTimestamp parses an API timestamp, returned in UTC.
func ToTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ToDecimal parses an ISK amount. Thousands separators are removed.
func ToDecimal(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid number %q", s)
	}
	return d, nil
}

// ToBool accepts true/false, yes/no, t/f, y/n and 1/0 in any case.
func ToBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", s)
	}
}
