package util

import (
	"fmt"
	"regexp"
	"time"
)

var (
	bogotaLocation *time.Location
	nameDateRegex  *regexp.Regexp
)

func init() {
	// The switch operates on Colombia time (UTC-5, no DST).
	bogotaLocation = time.FixedZone("COT", -5*60*60)

	// Matches the 8-digit date block embedded in archive names.
	nameDateRegex = regexp.MustCompile(`^\d{8}$`)
}

// NowBogota returns the current time in the switch's operating time zone.
func NowBogota() time.Time {
	return time.Now().In(bogotaLocation)
}

// BogotaLocation returns the fixed time zone used for all persisted timestamps.
func BogotaLocation() *time.Location {
	return bogotaLocation
}

// IsNameDate checks if a string is an 8-digit YYYYMMDD block.
func IsNameDate(s string) bool {
	return nameDateRegex.MatchString(s)
}

// ParseNameDate converts a YYYYMMDD string (as embedded in archive names) to a
// date in the Bogota zone. Returns an error if the block does not parse.
func ParseNameDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("20060102", s, bogotaLocation)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse name date from '%s': %w", s, err)
	}
	return t, nil
}

// Timestamp14 renders t as the 14-digit block used to suffix working folders.
func Timestamp14(t time.Time) string {
	return t.In(bogotaLocation).Format("20060102150405")
}

// MonthPartition renders t as the YYYYMM folder under the rejected prefix.
func MonthPartition(t time.Time) string {
	return t.In(bogotaLocation).Format("200601")
}

// NotificationDate renders t the way operator mails expect the reception date.
func NotificationDate(t time.Time) string {
	return t.In(bogotaLocation).Format("02/01/2006")
}

// NotificationTime renders t the way operator mails expect the reception hour.
func NotificationTime(t time.Time) string {
	return t.In(bogotaLocation).Format("03:04 PM")
}
