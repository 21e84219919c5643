// Package dates parses the date formats found in syndication feeds.
package dates

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// iso8601Formats are tried in order. The colon in the timezone offset is
// optional in the wild, so both variants are listed.
var iso8601Formats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04-0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02",
}

// ParseISO8601 parses an ISO 8601 date string and returns a UNIX timestamp.
// Returns 0 when the string cannot be parsed. Formats without a timezone
// are interpreted as UTC, date-only input as midnight UTC.
func ParseISO8601(date string) int64 {
	date = strings.TrimSpace(date)
	if date == "" {
		return 0
	}

	for _, format := range iso8601Formats {
		if t, err := time.ParseInLocation(format, date, time.UTC); err == nil {
			return t.Unix()
		}
	}

	return 0
}

// FormatISO8601 formats a UNIX timestamp as an RFC 3339 UTC string.
// ParseISO8601(FormatISO8601(t)) == t for any representable t.
func FormatISO8601(t int64) string {
	return time.Unix(t, 0).UTC().Format(time.RFC3339)
}

// In theory only the RFC 822 zone names would be needed here, in practice
// feeds use many others. Lookup is a prefix match in table order.
var rfc822Zones = []struct {
	name   string
	offset int // seconds east of UTC
}{
	{"IDLW", -12 * 3600},
	{"HAST", -10 * 3600},
	{"AKST", -9 * 3600},
	{"AKDT", -8 * 3600},
	{"WESZ", 1 * 3600},
	{"WEST", 1 * 3600},
	{"WEDT", 1 * 3600},
	{"MEST", 2 * 3600},
	{"MESZ", 2 * 3600},
	{"CEST", 2 * 3600},
	{"CEDT", 2 * 3600},
	{"EEST", 3 * 3600},
	{"EEDT", 3 * 3600},
	{"IRST", 4*3600 + 1800},
	{"CNST", 8 * 3600},
	{"ACST", 9*3600 + 1800},
	{"ACDT", 10*3600 + 1800},
	{"AEST", 10 * 3600},
	{"AEDT", 11 * 3600},
	{"IDLE", 12 * 3600},
	{"NZST", 12 * 3600},
	{"NZDT", 13 * 3600},
	{"GMT", 0},
	{"EST", -5 * 3600},
	{"EDT", -4 * 3600},
	{"CST", -6 * 3600},
	{"CDT", -5 * 3600},
	{"MST", -7 * 3600},
	{"MDT", -6 * 3600},
	{"PST", -8 * 3600},
	{"PDT", -7 * 3600},
	{"HDT", -9 * 3600},
	{"YST", -9 * 3600},
	{"YDT", -8 * 3600},
	{"AST", -4 * 3600},
	{"ADT", -3 * 3600},
	{"VST", -4*3600 - 1800},
	{"NST", -3*3600 - 1800},
	{"NDT", -2*3600 - 1800},
	{"WET", 0},
	{"WEZ", 0},
	{"IST", 1 * 3600},
	{"CET", 1 * 3600},
	{"MEZ", 1 * 3600},
	{"EET", 2 * 3600},
	{"MSK", 3 * 3600},
	{"MSD", 4 * 3600},
	{"IRT", 3*3600 + 1800},
	{"ICT", 7 * 3600},
	{"JST", 9 * 3600},
	{"NFT", 11*3600 + 1800},
	{"UT", 0},
	{"PT", -8 * 3600},
	{"BT", 3 * 3600},
	{"Z", 0},
	{"A", -1 * 3600},
	{"M", -12 * 3600},
	{"N", 1 * 3600},
	{"Y", 12 * 3600},
}

// parseRFC822TZ resolves a timezone token to a fixed location. Numeric
// ±hh[:]mm offsets are handled directly, names come from the closed zone
// table, anything else defaults to UTC.
func parseRFC822TZ(token string) *time.Location {
	if token == "" {
		return time.UTC
	}

	if token[0] == '+' || token[0] == '-' {
		if loc := parseNumericTZ(token); loc != nil {
			return loc
		}
		return time.UTC
	}

	token = strings.TrimPrefix(token, "(")
	for _, zone := range rfc822Zones {
		if strings.HasPrefix(token, zone.name) {
			return time.FixedZone(zone.name, zone.offset)
		}
	}

	return time.UTC
}

// parseNumericTZ parses ±hh, ±hhmm and ±hh:mm offsets.
func parseNumericTZ(token string) *time.Location {
	sign := 1
	if token[0] == '-' {
		sign = -1
	}
	digits := strings.ReplaceAll(token[1:], ":", "")
	if len(digits) != 2 && len(digits) != 4 {
		return nil
	}

	hours, err := strconv.Atoi(digits[:2])
	if err != nil {
		return nil
	}
	minutes := 0
	if len(digits) == 4 {
		if minutes, err = strconv.Atoi(digits[2:]); err != nil {
			return nil
		}
	}

	return time.FixedZone(token, sign*(hours*3600+minutes*60))
}

var rfc822Months = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun",
	"Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// parseMonth matches a three letter month name case-insensitively and
// returns 1..12, or 0 on failure.
func parseMonth(s string) int {
	if len(s) < 3 {
		return 0
	}
	for i, name := range rfc822Months {
		if strings.EqualFold(s[:3], name) {
			return i + 1
		}
	}
	return 0
}

// ParseRFC822 parses an RFC 822 date string and returns a UNIX timestamp.
// We expect at least something like "03 Dec 12 01:38:34" and don't require
// a day of week or the timezone. The most specific form handled is
// "Fri, 03 Dec 12 01:38:34 CET". Returns 0 on failure.
func ParseRFC822(date string) int64 {
	// skip day of week
	if idx := strings.IndexByte(date, ','); idx >= 0 {
		date = date[idx+1:]
	}
	pos := strings.TrimLeftFunc(date, unicode.IsSpace)

	day, pos, ok := takeNumber(pos)
	if !ok {
		return 0
	}

	pos = strings.TrimLeftFunc(pos, unicode.IsSpace)
	month := parseMonth(pos)
	if month == 0 {
		return 0
	}
	pos = pos[3:]
	pos = strings.TrimLeftFunc(pos, unicode.IsSpace)

	year, pos, ok := takeNumber(pos)
	if !ok {
		return 0
	}
	if year < 100 {
		// 2-digit years after 68 are in the 20th century (strptime convention)
		if year > 68 {
			year += 1900
		} else {
			year += 2000
		}
	}

	pos = strings.TrimLeftFunc(pos, unicode.IsSpace)
	hour, pos, ok := takeNumber(pos)
	if !ok || !strings.HasPrefix(pos, ":") {
		return 0
	}
	minute, pos, ok := takeNumber(pos[1:])
	if !ok {
		return 0
	}

	second := 0
	if strings.HasPrefix(pos, ":") {
		if second, pos, ok = takeNumber(pos[1:]); !ok {
			return 0
		}
	}

	loc := parseRFC822TZ(strings.TrimSpace(pos))

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, loc).Unix()
}

// takeNumber consumes a leading decimal number and returns it with the rest
// of the string.
func takeNumber(s string) (int, string, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, s, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, s, false
	}
	return n, s[i:], true
}
