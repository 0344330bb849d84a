// Package fieldcheck parses, normalizes and rejects typed field input before
// it becomes a placement. It is pure: a rejection never has side effects.
package fieldcheck

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	signerr "github.com/a3tai/mcp-pdf-signer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-signer/internal/pdf/form"
)

const (
	MaxAge          = 120
	MaxNumberSelect = 99
	minYear         = 1000
	maxYear         = 9999
)

var (
	isoDatePattern   = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	slashDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)
	dotDatePattern   = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{2,4})$`)
	integerPattern   = regexp.MustCompile(`^[+-]?\d+$`)

	isoDateTimeLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
	}
)

// usStates holds the 50 state USPS codes plus DC
var usStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true, "CT": true,
	"DE": true, "FL": true, "GA": true, "HI": true, "ID": true, "IL": true, "IN": true,
	"IA": true, "KS": true, "KY": true, "LA": true, "ME": true, "MD": true, "MA": true,
	"MI": true, "MN": true, "MS": true, "MO": true, "MT": true, "NE": true, "NV": true,
	"NH": true, "NJ": true, "NM": true, "NY": true, "NC": true, "ND": true, "OH": true,
	"OK": true, "OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true, "WI": true,
	"WY": true, "DC": true,
}

// Validate normalizes raw input for a field type. The error is always a
// validation rejection carrying a user-facing message.
func Validate(t form.FieldType, raw string) (string, error) {
	switch t {
	case form.FieldTypeDate:
		return Date(raw)
	case form.FieldTypePhone:
		return Phone(raw)
	case form.FieldTypeAge:
		return IntegerInRange(raw, 0, MaxAge, "age")
	case form.FieldTypeNumberSelect:
		return IntegerInRange(raw, 0, MaxNumberSelect, "number")
	case form.FieldTypeState:
		return State(raw)
	case form.FieldTypeText, form.FieldTypeName, form.FieldTypeEmail, form.FieldTypeCompany,
		form.FieldTypeTitle, form.FieldTypeNumber, form.FieldTypeDropdown:
		return NonEmpty(raw)
	case form.FieldTypeSignature, form.FieldTypeInitials, form.FieldTypeStamp,
		form.FieldTypeCheckbox, form.FieldTypeRadio:
		return "", signerr.Rejection(fmt.Sprintf("%s fields do not accept typed values", t))
	default:
		return "", signerr.Rejection(fmt.Sprintf("unknown field type %q", t))
	}
}

// NonEmpty accepts any value that is not blank after trimming. The value is
// returned exactly as typed.
func NonEmpty(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", signerr.Rejection("a value is required")
	}
	return raw, nil
}

// Date accepts YYYY-MM-DD, M/D/YYYY, M.D.YYYY or an ISO datetime and returns
// MM/DD/YYYY. Two digit years are taken to be in the 2000s.
func Date(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", signerr.Rejection("a date is required")
	}

	var year, month, day int
	switch {
	case isoDatePattern.MatchString(s):
		m := isoDatePattern.FindStringSubmatch(s)
		year, month, day = atoi(m[1]), atoi(m[2]), atoi(m[3])
	case slashDatePattern.MatchString(s):
		m := slashDatePattern.FindStringSubmatch(s)
		month, day, year = atoi(m[1]), atoi(m[2]), expandYear(m[3])
	case dotDatePattern.MatchString(s):
		m := dotDatePattern.FindStringSubmatch(s)
		month, day, year = atoi(m[1]), atoi(m[2]), expandYear(m[3])
	default:
		ts, ok := parseISODateTime(s)
		if !ok {
			return "", signerr.Rejection("use a date like 2024-03-05, 3/5/2024 or 3.5.2024")
		}
		year, month, day = ts.Year(), int(ts.Month()), ts.Day()
	}

	if !validCalendarDate(year, month, day) {
		return "", signerr.Rejection(fmt.Sprintf("%s is not a valid calendar date", s))
	}
	return fmt.Sprintf("%02d/%02d/%04d", month, day, year), nil
}

// Phone strips every non-digit and formats exactly ten digits as (XXX) XXX-XXXX
func Phone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) != 10 {
		return "", signerr.Rejection(fmt.Sprintf("phone number must have exactly 10 digits, got %d", len(digits)))
	}
	return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:]), nil
}

// IntegerInRange accepts an integer between lo and hi inclusive and returns
// its canonical decimal form
func IntegerInRange(raw string, lo, hi int, label string) (string, error) {
	s := strings.TrimSpace(raw)
	if !integerPattern.MatchString(s) {
		return "", signerr.Rejection(fmt.Sprintf("%s must be a whole number", label))
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return "", signerr.Rejection(fmt.Sprintf("%s must be between %d and %d", label, lo, hi))
	}
	return strconv.Itoa(n), nil
}

// State uppercases the input and requires a USPS state code or DC
func State(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if !usStates[s] {
		return "", signerr.Rejection(fmt.Sprintf("%q is not a US state code", raw))
	}
	return s, nil
}

func parseISODateTime(s string) (time.Time, bool) {
	for _, layout := range isoDateTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func expandYear(s string) int {
	y := atoi(s)
	if len(s) == 2 {
		y += 2000
	}
	return y
}

func validCalendarDate(year, month, day int) bool {
	if year < minYear || year > maxYear || month < 1 || month > 12 || day < 1 {
		return false
	}
	// time.Date normalizes overflow, so Feb 30 comes back as March
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && int(t.Month()) == month && t.Day() == day
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
