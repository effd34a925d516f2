package parse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DialectKO parses transcripts with Korean date separators and day-period
// markers, e.g.
//
//	2025년 9월 9일 화요일
//	[큰누나] [오후 7:37] 본문
var (
	koDateLineRx = regexp.MustCompile(
		`^\s*(\d{4})년\s+(\d{1,2})월\s+(\d{1,2})일(?:\s+(일|월|화|수|목|금|토)요일)?\s*$`)
	koMsgHeaderRx = regexp.MustCompile(
		`^\[(.+?)\]\s+\[(오전|오후)\s*(\d{1,2}):(\d{2})\](?:\s*(.*))?$`)
)

type DialectKO struct{}

func (DialectKO) Name() string { return "ko" }

func (DialectKO) MatchDate(line string) (bool, time.Time, bool) {
	m := koDateLineRx.FindStringSubmatch(line)
	if m == nil {
		return false, time.Time{}, false
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	day := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.Local)
	// time.Date normalizes out-of-range components (month 13 becomes
	// January); a round-trip mismatch means the calendar date was invalid.
	if day.Year() != y || day.Month() != time.Month(mo) || day.Day() != d {
		return true, time.Time{}, false
	}
	return true, day, true
}

func (DialectKO) MatchHeader(line string) (bool, string, int, string, bool) {
	m := koMsgHeaderRx.FindStringSubmatch(line)
	if m == nil {
		return false, "", 0, "", false
	}
	sender := strings.TrimSpace(m[1])
	pm := m[2] == "오후"
	h, _ := strconv.Atoi(m[3])
	mi, _ := strconv.Atoi(m[4])
	if mi > 59 {
		return true, "", 0, "", false
	}
	switch {
	case h >= 1 && h <= 12:
		if h == 12 {
			h = 0
		}
		if pm {
			h += 12
		}
	case h <= 23:
		// Some clients emit a 24-hour clock despite the day-period marker;
		// take the hour literally.
	default:
		return true, "", 0, "", false
	}
	return true, sender, h*60 + mi, m[5], true
}
