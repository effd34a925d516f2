// Package parse segments raw capture text into discrete chat messages.
//
// The input is whatever the window agent managed to copy out of a chat
// window: date separator lines, message header lines and free body lines,
// in two grammar dialects (EN and KO). The scanner is deliberately
// forgiving — garbled lines are dropped, not errors — but a capture that
// never contained a valid date separator is treated as a partial read and
// yields nothing at all.
package parse

import (
	"strings"
	"time"
)

// Message is one parsed chat message. Timestamps have minute precision
// (seconds are always zero). Sequence is the 0-based position within the
// parse result.
type Message struct {
	Sender    string
	Timestamp time.Time
	Content   string
	Sequence  int
}

// Dialect is one transcript grammar.
type Dialect interface {
	// Name is a short config-friendly identifier ("en", "ko").
	Name() string
	// MatchDate reports whether line is a date separator and, if parseable,
	// the day it denotes. A separator with an unparseable date returns
	// (true, zero time, false).
	MatchDate(line string) (isDate bool, day time.Time, ok bool)
	// MatchHeader reports whether line is a message header. On success it
	// returns the sender, the minutes elapsed since midnight, and any
	// inline body on the same line. A header with an unparseable clock
	// returns ok=false.
	MatchHeader(line string) (isHeader bool, sender string, minuteOfDay int, inline string, ok bool)
}

// ForName returns the dialect for a config identifier, defaulting to EN.
func ForName(name string) Dialect {
	if strings.EqualFold(strings.TrimSpace(name), "ko") {
		return DialectKO{}
	}
	return DialectEN{}
}

// Raw runs the line scanner over one capture and returns the messages in
// capture order.
func Raw(d Dialect, raw string) []Message {
	results := make([]Message, 0)
	if strings.TrimSpace(raw) == "" {
		return results
	}

	var (
		currentDate time.Time
		haveDate    bool
		sawAnyDate  bool

		sender  string
		ts      time.Time
		haveMsg bool
		content strings.Builder
	)

	flush := func() {
		if haveMsg {
			body := strings.TrimRight(content.String(), "\r\n")
			results = append(results, Message{
				Sender:    sender,
				Timestamp: ts,
				Content:   body,
				Sequence:  len(results),
			})
		}
		sender = ""
		haveMsg = false
		content.Reset()
	}
	discard := func() {
		sender = ""
		haveMsg = false
		content.Reset()
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")

		if isDate, day, ok := d.MatchDate(line); isDate {
			flush()
			if ok {
				currentDate = day
				haveDate = true
				sawAnyDate = true
			} else {
				haveDate = false
			}
			continue
		}

		if isHeader, s, mod, inline, ok := d.MatchHeader(line); isHeader {
			if !haveDate {
				// Messages before the first valid date separator are never
				// kept; the date boundary is what anchors their timestamp.
				discard()
				continue
			}
			if !ok {
				flush()
				discard()
				continue
			}
			flush()
			sender = s
			ts = currentDate.Add(time.Duration(mod) * time.Minute)
			haveMsg = true
			if inline != "" {
				content.WriteString(inline)
			}
			continue
		}

		// Body line: belongs to the open message, or is an orphan.
		if haveMsg {
			if content.Len() > 0 {
				content.WriteString("\n")
			}
			content.WriteString(line)
		}
	}

	flush()

	// A capture with message lines but no date boundary anywhere is assumed
	// to be a truncated read, not a real message set.
	if !sawAnyDate {
		return results[:0]
	}
	return results
}
