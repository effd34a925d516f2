package parse

import (
	"regexp"
	"strings"
	"time"
)

// DialectEN parses transcripts with Gregorian date separators, e.g.
//
//	Saturday, May 10, 2025
//	[Alice] [1:40 AM] hi
var (
	enDateLineRx = regexp.MustCompile(
		`^(Sunday|Monday|Tuesday|Wednesday|Thursday|Friday|Saturday),\s+[A-Za-z]+\s+\d{1,2},\s+\d{4}$`)
	enMsgHeaderRx = regexp.MustCompile(
		`^\[(.+?)\]\s+\[(\d{1,2}:\d{2})\s?(AM|PM)\](?:\s*(.*))?$`)
)

type DialectEN struct{}

func (DialectEN) Name() string { return "en" }

func (DialectEN) MatchDate(line string) (bool, time.Time, bool) {
	if !enDateLineRx.MatchString(line) {
		return false, time.Time{}, false
	}
	day, err := time.ParseInLocation("Monday, January 2, 2006", line, time.Local)
	if err != nil {
		return true, time.Time{}, false
	}
	return true, day, true
}

func (DialectEN) MatchHeader(line string) (bool, string, int, string, bool) {
	m := enMsgHeaderRx.FindStringSubmatch(line)
	if m == nil {
		return false, "", 0, "", false
	}
	sender := strings.TrimSpace(m[1])
	mod, ok := clockMinutes(m[2], m[3] == "PM")
	if !ok {
		return true, "", 0, "", false
	}
	return true, sender, mod, m[4], true
}

// clockMinutes converts a 12-hour "h:mm" clock plus meridiem to minutes
// since midnight. 12 AM maps to 00:xx and 12 PM stays 12:xx.
func clockMinutes(hhmm string, pm bool) (int, bool) {
	t, err := time.Parse("3:04", hhmm)
	if err != nil {
		return 0, false
	}
	h, m := t.Hour(), t.Minute()
	if h < 1 || h > 12 {
		return 0, false
	}
	if h == 12 {
		h = 0
	}
	if pm {
		h += 12
	}
	return h*60 + m, true
}
