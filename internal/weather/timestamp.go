package weather

import "time"

const (
	layoutDateTime = "2006-01-02T15:04"
	layoutDate     = "2006-01-02"
)

// ParseLocalDateTime converts an Open-Meteo local time string to epoch
// seconds using the process local timezone. See ParseLocalDateTimeIn.
func ParseLocalDateTime(s string) int64 {
	return ParseLocalDateTimeIn(s, time.Local)
}

// ParseLocalDateTimeIn converts "YYYY-MM-DDTHH:MM" or "YYYY-MM-DD" to epoch
// seconds, interpreting the fields as wall clock time in loc. A date without
// a time is taken as 12:00. Unrecognized input yields 0.
//
// No UTC offset is applied from the string itself; DST is resolved by the
// calendar of loc.
func ParseLocalDateTimeIn(s string, loc *time.Location) int64 {
	if loc == nil {
		loc = time.Local
	}

	if t, err := time.ParseInLocation(layoutDateTime, s, loc); err == nil {
		return t.Unix()
	}

	if d, err := time.ParseInLocation(layoutDate, s, loc); err == nil {
		return time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, loc).Unix()
	}

	return 0
}
