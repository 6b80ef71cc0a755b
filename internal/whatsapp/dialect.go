// Package whatsapp parses WhatsApp chat export transcripts into chats.
//
// Export formats differ by platform and app version. Everything that
// depends on the exact line layout lives behind the Dialect interface so a
// new variant can be supported without touching the parser.
package whatsapp

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Header is the decomposed start line of a transcript message.
type Header struct {
	Date    string // as written, e.g. "1/31/24"
	Clock   string // as written, e.g. "1:05:09 PM"
	Sender  string
	Content string
}

// Dialect recognises one transcript line layout.
type Dialect interface {
	// Name identifies the dialect in logs.
	Name() string
	// MatchHeader decomposes a message start line. Lines that do not start
	// a message are continuations of the previous one.
	MatchHeader(line string) (Header, bool)
	// ParseTimestamp converts a header's date and clock to an instant in loc.
	ParseTimestamp(date, clock string, loc *time.Location) (time.Time, bool)
	// Attachment returns the attached filename if content is an attachment
	// reference.
	Attachment(content string) (string, bool)
	// IsUnsavedContact reports whether sender carries the marker WhatsApp
	// adds to names that are not in the exporter's address book.
	IsUnsavedContact(sender string) bool
	// IsSystemNotice reports whether content is an app-generated notice
	// rather than something a participant wrote.
	IsSystemNotice(content string) bool
}

// UnsavedContactMarker prefixes senders missing from the address book.
const UnsavedContactMarker = "~"

// space matches the separators WhatsApp puts between clock and meridiem,
// including the narrow no-break space newer iOS builds emit.
const space = `[\s\x{00A0}\x{202F}]`

// IOSDialect reads the bracketed iOS layout:
//
//	[1/31/24, 1:05:09 PM] Alice: hello
//	[1/31/24, 1:06:00 PM] Alice: <attached: 00000012-PHOTO-2024-01-31-13-06-00.jpg>
type IOSDialect struct{}

var (
	iosHeaderRe     = regexp.MustCompile(`^\[(\d{1,2}/\d{1,2}/\d{2,4}),?` + space + `+(\d{1,2}:\d{2}(?::\d{2})?` + space + `+(?:AM|PM))\]` + space + `+([^:]+):` + space + `*(.*)$`)
	iosAttachmentRe = regexp.MustCompile(`<attached:\s*(.+)>`)
)

func (IOSDialect) Name() string { return "ios" }

func (IOSDialect) MatchHeader(line string) (Header, bool) {
	m := iosHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return Header{}, false
	}
	return Header{Date: m[1], Clock: m[2], Sender: strings.TrimSpace(m[3]), Content: strings.TrimSpace(m[4])}, true
}

func (IOSDialect) ParseTimestamp(date, clock string, loc *time.Location) (time.Time, bool) {
	return parseTimestamp(date, clock, loc)
}

func (IOSDialect) Attachment(content string) (string, bool) {
	m := iosAttachmentRe.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	return name, name != ""
}

func (IOSDialect) IsUnsavedContact(sender string) bool {
	return strings.HasPrefix(sender, UnsavedContactMarker)
}

func (IOSDialect) IsSystemNotice(content string) bool {
	return isSystemNotice(content)
}

// AndroidDialect reads the dash-separated Android layout, in 12 or 24 hour
// clock:
//
//	1/31/24, 1:05 PM - Alice: hello
//	1/31/24, 13:06 - Alice: IMG-20240131-WA0003.jpg (file attached)
type AndroidDialect struct{}

var (
	androidHeaderRe     = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}),?` + space + `+(\d{1,2}:\d{2}(?::\d{2})?(?:` + space + `*(?:AM|PM|am|pm))?)` + space + `+-` + space + `+([^:]+):` + space + `*(.*)$`)
	androidAttachmentRe = regexp.MustCompile(`^(.+?)\s+\(file attached\)`)
)

func (AndroidDialect) Name() string { return "android" }

func (AndroidDialect) MatchHeader(line string) (Header, bool) {
	m := androidHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return Header{}, false
	}
	return Header{Date: m[1], Clock: m[2], Sender: strings.TrimSpace(m[3]), Content: strings.TrimSpace(m[4])}, true
}

func (AndroidDialect) ParseTimestamp(date, clock string, loc *time.Location) (time.Time, bool) {
	return parseTimestamp(date, clock, loc)
}

func (AndroidDialect) Attachment(content string) (string, bool) {
	m := androidAttachmentRe.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func (AndroidDialect) IsUnsavedContact(sender string) bool {
	return strings.HasPrefix(sender, UnsavedContactMarker)
}

func (AndroidDialect) IsSystemNotice(content string) bool {
	return isSystemNotice(content)
}

// DefaultDialects is the detection order used by NewParser.
func DefaultDialects() []Dialect {
	return []Dialect{IOSDialect{}, AndroidDialect{}}
}

// parseTimestamp reads M/D/Y dates (two-digit years are 20xx) and
// H:MM[:SS] clocks with an optional AM/PM suffix. Out-of-range fields fail
// rather than rolling over into the next day or month.
func parseTimestamp(date, clock string, loc *time.Location) (time.Time, bool) {
	dp := strings.Split(date, "/")
	if len(dp) != 3 {
		return time.Time{}, false
	}
	month, err1 := strconv.Atoi(dp[0])
	day, err2 := strconv.Atoi(dp[1])
	year, err3 := strconv.Atoi(dp[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if year < 100 {
		year += 2000
	}

	fields := strings.FieldsFunc(clock, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\u00a0' || r == '\u202f'
	})
	if len(fields) == 0 || len(fields) > 2 {
		return time.Time{}, false
	}
	hms := fields[0]
	meridiem := ""
	if len(fields) == 2 {
		meridiem = strings.ToUpper(fields[1])
	} else if n := len(hms); n > 2 {
		// Meridiem glued to the clock: "1:05PM".
		if suffix := strings.ToUpper(hms[n-2:]); suffix == "AM" || suffix == "PM" {
			meridiem = suffix
			hms = hms[:n-2]
		}
	}

	tp := strings.Split(hms, ":")
	if len(tp) < 2 || len(tp) > 3 {
		return time.Time{}, false
	}
	hour, err1 := strconv.Atoi(tp[0])
	minute, err2 := strconv.Atoi(tp[1])
	second := 0
	var errS error
	if len(tp) == 3 {
		second, errS = strconv.Atoi(tp[2])
	}
	if err1 != nil || err2 != nil || errS != nil {
		return time.Time{}, false
	}

	switch meridiem {
	case "PM":
		if hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		if hour != 12 {
			hour += 12
		}
	case "AM":
		if hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		if hour == 12 {
			hour = 0
		}
	case "":
		if hour > 23 {
			return time.Time{}, false
		}
	default:
		return time.Time{}, false
	}

	if month < 1 || month > 12 || day < 1 || minute > 59 || second > 59 || hour < 0 || minute < 0 || second < 0 {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	ts := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	if ts.Day() != day {
		// Feb 30 and friends.
		return time.Time{}, false
	}
	return ts, true
}

// systemNoticeRes match notices WhatsApp writes into exports on behalf of
// the app. Matching is case-insensitive.
var systemNoticeRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)messages and calls are (now )?end-to-end encrypted`),
	regexp.MustCompile(`(?i)uses a secure service from meta`),
	regexp.MustCompile(`(?i)^this business (is|uses|now uses) `),
	regexp.MustCompile(`(?i)^this chat is with a business account`),
	regexp.MustCompile(`(?i)^.{1,80} is a contact\.?$`),
	regexp.MustCompile(`(?i)changed (their|your) phone number`),
	regexp.MustCompile(`(?i)security code (with .+ )?changed`),
	regexp.MustCompile(`(?i)^you (blocked|unblocked) this contact`),
	regexp.MustCompile(`(?i)turned (on|off) disappearing messages`),
	regexp.MustCompile(`(?i)^disappearing messages (were|are) turned (on|off)`),
}

func isSystemNotice(content string) bool {
	for _, re := range systemNoticeRes {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}
