package weave

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// minutesPerDay is the day length used by all gap arithmetic.
const minutesPerDay = 24 * 60

// MessageTime is a single point in time as it appears in an exported chat
// archive: a weekday name, a "Month day" pair, a year, a 12-hour clock with
// am/pm suffix, and a timezone label.
//
// The timezone label is carried for display/round-trip only; all arithmetic
// assumes one implicit timezone, matching the archives this tool consumes.
// Values are immutable once constructed. Two values order first by calendar
// date, then by minute of day.
type MessageTime struct {
	year   int
	month  time.Month
	day    int
	hour   int // 0-23
	minute int
	zone   string
	raw    string
}

// MalformedTimestampError reports a raw timestamp string that does not match
// the archive's "Weekday, Month day, year clock zone" shape.
type MalformedTimestampError struct {
	Raw    string
	Reason string
}

func (e *MalformedTimestampError) Error() string {
	return fmt.Sprintf("malformed timestamp %q: %s", e.Raw, e.Reason)
}

// ParseMessageTime parses a raw archive timestamp such as
// "Thursday, January 1, 2015, 10:42pm PST". Both "10:42pm" and "10:42 PM"
// clock shapes are accepted. The original string is retained and returned by
// Raw.
func ParseMessageTime(raw string) (MessageTime, error) {
	malformed := func(reason string) (MessageTime, error) {
		return MessageTime{}, &MalformedTimestampError{Raw: raw, Reason: reason}
	}

	groups := strings.Split(raw, ",")
	if len(groups) != 3 && len(groups) != 4 {
		return malformed(fmt.Sprintf("expected 3 or 4 comma groups, got %d", len(groups)))
	}

	weekday := strings.TrimSpace(groups[0])
	if weekday == "" {
		return malformed("empty weekday")
	}

	monthDay := strings.Fields(strings.TrimSpace(groups[1]))
	if len(monthDay) != 2 {
		return malformed("expected \"Month day\" in second group")
	}
	month, ok := monthByName(monthDay[0])
	if !ok {
		return malformed("unknown month name " + monthDay[0])
	}
	day, err := strconv.Atoi(monthDay[1])
	if err != nil || day < 1 || day > 31 {
		return malformed("bad day of month " + monthDay[1])
	}

	// The remainder is "year [at] clock [meridiem] timezone", with or without
	// a comma between the year and the clock depending on export vintage.
	rest := strings.Fields(strings.Join(groups[2:], " "))
	if len(rest) > 1 && strings.EqualFold(rest[1], "at") {
		rest = append(rest[:1], rest[2:]...)
	}

	var clock, meridiem, zone string
	switch len(rest) {
	case 3:
		// "2015 10:42pm PST"
		clock, zone = rest[1], rest[2]
	case 4:
		// "2015 10:42 PM PST"
		clock, meridiem, zone = rest[1], rest[2], rest[3]
	default:
		return malformed("expected year, clock and timezone after the date")
	}

	year, err := strconv.Atoi(rest[0])
	if err != nil || year < 1 {
		return malformed("bad year")
	}

	if meridiem == "" {
		lower := strings.ToLower(clock)
		switch {
		case strings.HasSuffix(lower, "am"), strings.HasSuffix(lower, "pm"):
			meridiem = lower[len(lower)-2:]
			clock = clock[:len(clock)-2]
		default:
			return malformed("clock missing am/pm suffix")
		}
	}
	meridiem = strings.ToLower(strings.TrimSpace(meridiem))
	if meridiem != "am" && meridiem != "pm" {
		return malformed("bad meridiem " + meridiem)
	}

	hm := strings.Split(clock, ":")
	if len(hm) != 2 {
		return malformed("bad clock " + clock)
	}
	hour12, err := strconv.Atoi(hm[0])
	if err != nil || hour12 < 1 || hour12 > 12 {
		return malformed("bad hour")
	}
	minute, err := strconv.Atoi(hm[1])
	if err != nil || minute < 0 || minute > 59 {
		return malformed("bad minute")
	}

	hour := hour12 % 12
	if meridiem == "pm" {
		hour += 12
	}

	return MessageTime{
		year:   year,
		month:  month,
		day:    day,
		hour:   hour,
		minute: minute,
		zone:   zone,
		raw:    raw,
	}, nil
}

// MessageTimeFromDate synthesizes a MessageTime at midnight on the given
// calendar date. Histogram axes use this to emit one entry per day, including
// days with no messages.
func MessageTimeFromDate(t time.Time) MessageTime {
	mt := MessageTime{
		year:   t.Year(),
		month:  t.Month(),
		day:    t.Day(),
		hour:   0,
		minute: 0,
	}
	mt.raw = fmt.Sprintf("%s, %s %d, %d, 12:00am UTC", t.Weekday(), mt.month, mt.day, mt.year)
	return mt
}

// Raw returns the original source string (or a synthesized one for values
// built with MessageTimeFromDate).
func (t MessageTime) Raw() string { return t.raw }

// Zone returns the timezone label carried by the source string. It plays no
// part in ordering or distance.
func (t MessageTime) Zone() string { return t.zone }

// Date returns the calendar date at midnight UTC.
func (t MessageTime) Date() time.Time {
	return time.Date(t.year, t.month, t.day, 0, 0, 0, 0, time.UTC)
}

// Weekday returns the day of week implied by the calendar date.
func (t MessageTime) Weekday() time.Weekday { return t.Date().Weekday() }

// MinutesOfDay converts the 12-hour clock to minutes since midnight,
// in [0, 1440).
func (t MessageTime) MinutesOfDay() int { return t.hour*60 + t.minute }

// DaysBetween returns the calendar-day delta t - other. It is negative when t
// is on an earlier date.
func (t MessageTime) DaysBetween(other MessageTime) int {
	return int(t.Date().Sub(other.Date()) / (24 * time.Hour))
}

// DistanceMinutes returns the signed minute distance t - other. Positive
// means t is later. Both the merge engine's gap test and the conversation
// starter threshold are comparisons against this value, so the sign
// convention is load-bearing.
func (t MessageTime) DistanceMinutes(other MessageTime) int {
	return (t.MinutesOfDay() - other.MinutesOfDay()) + t.DaysBetween(other)*minutesPerDay
}

// Compare orders by (calendar date, minute of day): -1 if t is earlier,
// 0 if equal, +1 if later.
func (t MessageTime) Compare(other MessageTime) int {
	if d := t.DaysBetween(other); d != 0 {
		if d < 0 {
			return -1
		}
		return 1
	}
	switch a, b := t.MinutesOfDay(), other.MinutesOfDay(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Before reports whether t is strictly earlier than other.
func (t MessageTime) Before(other MessageTime) bool { return t.Compare(other) < 0 }

// Equal reports whether both calendar date and minute of day match.
func (t MessageTime) Equal(other MessageTime) bool { return t.Compare(other) == 0 }

func (t MessageTime) String() string {
	if t.raw != "" {
		return t.raw
	}
	return fmt.Sprintf("%s %d, %d %02d:%02d", t.month, t.day, t.year, t.hour, t.minute)
}

func monthByName(name string) (time.Month, bool) {
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(name, m.String()) {
			return m, true
		}
	}
	return 0, false
}
