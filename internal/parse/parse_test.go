package parse

import (
	"strings"
	"testing"
	"time"
)

func TestRawENBasic(t *testing.T) {
	t.Parallel()
	raw := strings.Join([]string{
		"Saturday, May 10, 2025",
		"[Alice] [1:40 AM] hi",
		"[Bob] [1:41 AM] hello",
	}, "\n")

	msgs := Raw(DialectEN{}, raw)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	want := time.Date(2025, 5, 10, 1, 40, 0, 0, time.Local)
	if msgs[0].Sender != "Alice" || !msgs[0].Timestamp.Equal(want) || msgs[0].Content != "hi" {
		t.Fatalf("unexpected first message: %+v", msgs[0])
	}
	if msgs[0].Sequence != 0 || msgs[1].Sequence != 1 {
		t.Fatalf("sequences = %d,%d, want 0,1", msgs[0].Sequence, msgs[1].Sequence)
	}
}

func TestRawRepeatedIdenticalMessagesKeepPositions(t *testing.T) {
	t.Parallel()
	raw := strings.Join([]string{
		"Saturday, May 10, 2025",
		"[Alice] [1:40 AM] hi",
		"[Alice] [1:40 AM] hi",
	}, "\n")

	msgs := Raw(DialectEN{}, raw)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Sequence == msgs[1].Sequence {
		t.Fatalf("identical messages collapsed: both sequence %d", msgs[0].Sequence)
	}
}

func TestRawMultilineBody(t *testing.T) {
	t.Parallel()
	raw := strings.Join([]string{
		"Saturday, May 10, 2025",
		"[Alice] [1:40 AM] first line",
		"second line",
		"third line",
		"[Bob] [2:00 AM] next",
	}, "\n")

	msgs := Raw(DialectEN{}, raw)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "first line\nsecond line\nthird line" {
		t.Fatalf("multiline body = %q", msgs[0].Content)
	}
}

func TestRawNoDateYieldsNothing(t *testing.T) {
	t.Parallel()
	raw := strings.Join([]string{
		"[Alice] [1:40 AM] hi",
		"[Bob] [1:41 AM] hello",
	}, "\n")

	if msgs := Raw(DialectEN{}, raw); len(msgs) != 0 {
		t.Fatalf("expected no messages without a date separator, got %d", len(msgs))
	}
}

func TestRawHeaderBeforeDateDropped(t *testing.T) {
	t.Parallel()
	raw := strings.Join([]string{
		"[Alice] [1:40 AM] too early",
		"Saturday, May 10, 2025",
		"[Bob] [1:41 AM] kept",
	}, "\n")

	msgs := Raw(DialectEN{}, raw)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Sender != "Bob" {
		t.Fatalf("kept message from %q, want Bob", msgs[0].Sender)
	}
}

func TestRawUnparsableDateInvalidatesFollowing(t *testing.T) {
	t.Parallel()
	raw := strings.Join([]string{
		"Saturday, May 10, 2025",
		"[Alice] [1:40 AM] kept",
		"Saturday, Blursday 99, 2025",
		"[Bob] [1:41 AM] dropped",
	}, "\n")

	msgs := Raw(DialectEN{}, raw)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Sender != "Alice" {
		t.Fatalf("kept message from %q, want Alice", msgs[0].Sender)
	}
}

func TestRawBadClockFlushesOpenMessage(t *testing.T) {
	t.Parallel()
	raw := strings.Join([]string{
		"Saturday, May 10, 2025",
		"[Alice] [1:40 AM] kept",
		"[Bob] [13:00 AM] bad clock",
		"orphan body line",
		"[Carol] [2:00 PM] also kept",
	}, "\n")

	msgs := Raw(DialectEN{}, raw)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Sender != "Alice" || msgs[1].Sender != "Carol" {
		t.Fatalf("senders = %q,%q, want Alice,Carol", msgs[0].Sender, msgs[1].Sender)
	}
	if msgs[0].Content != "kept" {
		t.Fatalf("first message body leaked orphan lines: %q", msgs[0].Content)
	}
	want := time.Date(2025, 5, 10, 14, 0, 0, 0, time.Local)
	if !msgs[1].Timestamp.Equal(want) {
		t.Fatalf("PM conversion wrong: %v, want %v", msgs[1].Timestamp, want)
	}
}

func TestRawEmpty(t *testing.T) {
	t.Parallel()
	if msgs := Raw(DialectEN{}, "   \n\n"); len(msgs) != 0 {
		t.Fatalf("expected no messages from blank input, got %d", len(msgs))
	}
}

func TestClockMinutesMeridiem(t *testing.T) {
	t.Parallel()
	tests := []struct {
		hhmm string
		pm   bool
		want int
		ok   bool
	}{
		{"12:00", false, 0, true},
		{"12:30", true, 12*60 + 30, true},
		{"1:05", false, 65, true},
		{"11:59", true, 23*60 + 59, true},
		{"0:10", false, 0, false},
		{"13:00", false, 0, false},
	}
	for _, tt := range tests {
		got, ok := clockMinutes(tt.hhmm, tt.pm)
		if ok != tt.ok {
			t.Fatalf("clockMinutes(%q, pm=%v) ok = %v, want %v", tt.hhmm, tt.pm, ok, tt.ok)
		}
		if ok && got != tt.want {
			t.Fatalf("clockMinutes(%q, pm=%v) = %d, want %d", tt.hhmm, tt.pm, got, tt.want)
		}
	}
}

func TestRawKOBasic(t *testing.T) {
	t.Parallel()
	raw := strings.Join([]string{
		"2025년 9월 9일 화요일",
		"[큰누나] [오후 7:37] 저녁 먹었어?",
		"[동생] [오전 12:05] 응",
	}, "\n")

	msgs := Raw(DialectKO{}, raw)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	want := time.Date(2025, 9, 9, 19, 37, 0, 0, time.Local)
	if !msgs[0].Timestamp.Equal(want) {
		t.Fatalf("오후 conversion wrong: %v, want %v", msgs[0].Timestamp, want)
	}
	// 오전 12:05 is five past midnight.
	want = time.Date(2025, 9, 9, 0, 5, 0, 0, time.Local)
	if !msgs[1].Timestamp.Equal(want) {
		t.Fatalf("오전 12시 conversion wrong: %v, want %v", msgs[1].Timestamp, want)
	}
}

func TestRawKODateWithoutWeekday(t *testing.T) {
	t.Parallel()
	raw := strings.Join([]string{
		"2025년 1월 2일",
		"[가] [오전 9:00] ㅎㅇ",
	}, "\n")

	msgs := Raw(DialectKO{}, raw)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	want := time.Date(2025, 1, 2, 9, 0, 0, 0, time.Local)
	if !msgs[0].Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", msgs[0].Timestamp, want)
	}
}

func TestKOInvalidCalendarDate(t *testing.T) {
	t.Parallel()
	isDate, _, ok := DialectKO{}.MatchDate("2025년 2월 30일")
	if !isDate {
		t.Fatal("expected line to be recognized as a date separator")
	}
	if ok {
		t.Fatal("expected February 30 to be rejected")
	}
}

func TestKOTwentyFourHourFallback(t *testing.T) {
	t.Parallel()
	isHeader, sender, mod, _, ok := DialectKO{}.MatchHeader("[누나] [오후 19:15] 본문")
	if !isHeader || !ok {
		t.Fatalf("header not accepted: isHeader=%v ok=%v", isHeader, ok)
	}
	if sender != "누나" {
		t.Fatalf("sender = %q", sender)
	}
	if mod != 19*60+15 {
		t.Fatalf("minuteOfDay = %d, want %d (literal 24-hour clock)", mod, 19*60+15)
	}
}

func TestForName(t *testing.T) {
	t.Parallel()
	if ForName("ko").Name() != "ko" {
		t.Fatal("ForName(ko) did not return the KO dialect")
	}
	if ForName("").Name() != "en" {
		t.Fatal("ForName default is not EN")
	}
	if ForName(" EN ").Name() != "en" {
		t.Fatal("ForName is not case/space tolerant")
	}
}
