// Package writer turns remote records into destination-ready rows and
// applies them as idempotent keyed upserts.
package writer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/datamill-io/syncmill/pkg/jsonx"
	"github.com/datamill-io/syncmill/pkg/schema"
)

var (
	isoTimestamp = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})T(\d{2}:\d{2}:\d{2})Z?$`)
	nonDecimal   = regexp.MustCompile(`[^0-9.\-]`)
)

// Normalize coerces a raw record value for its destination column type.
// The result is either nil or a driver-ready scalar; nested values under
// a text column serialize to a canonical string with stable key order so
// unchanged content produces byte-identical column values across runs.
// The boolean return reports whether a declared-datetime value failed to
// parse, so the caller can log it.
func Normalize(v interface{}, t schema.ColumnType) (interface{}, bool) {
	if v == nil {
		return nil, false
	}

	switch t {
	case schema.TypeBoolean:
		return normalizeBool(v), false
	case schema.TypeDatetime:
		s := normalizeDatetime(v)
		if s == nil {
			return nil, true
		}
		return s, false
	case schema.TypeDecimal:
		return normalizeDecimal(v), false
	}

	switch v.(type) {
	case map[string]interface{}, []interface{}:
		s, err := jsonx.Canonical(v)
		if err != nil {
			return nil, false
		}
		return s, false
	}
	return v, false
}

func normalizeBool(v interface{}) interface{} {
	switch b := v.(type) {
	case bool:
		if b {
			return 1
		}
		return 0
	case string:
		switch strings.ToLower(b) {
		case "true":
			return 1
		case "false":
			return 0
		}
	}
	return nil
}

// normalizeDatetime accepts a strict ISO timestamp or a localized
// D/M/YYYY date and rewrites either to MySQL datetime form. Anything
// else is nil.
func normalizeDatetime(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return nil
	}

	if m := isoTimestamp.FindStringSubmatch(s); m != nil {
		return m[1] + " " + m[2]
	}

	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return nil
	}
	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}
	if year < 1000 || month < 1 || month > 12 {
		return nil
	}
	if day < 1 || day > daysInMonth(month, year) {
		return nil
	}
	return fmt.Sprintf("%04d-%02d-%02d 00:00:00", year, month, day)
}

func daysInMonth(month, year int) int {
	switch month {
	case 4, 6, 9, 11:
		return 30
	case 2:
		if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
			return 29
		}
		return 28
	default:
		return 31
	}
}

// normalizeDecimal strips everything except digits, dot and minus before
// parsing, so formatted values like "1 234,50 €" degrade gracefully.
func normalizeDecimal(v interface{}) interface{} {
	var s string
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return n
	case int64:
		return n
	case string:
		s = n
	default:
		s = fmt.Sprintf("%v", v)
	}

	s = nonDecimal.ReplaceAllString(s, "")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return f
}

// KeyString renders a record's identity value as the destination key.
func KeyString(v interface{}) string {
	switch k := v.(type) {
	case string:
		return k
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	case int:
		return strconv.Itoa(k)
	case int64:
		return strconv.FormatInt(k, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
