// Package textutil normalises transcript text and formats it for display.
package textutil

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	xunicode "golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xef, 0xbb, 0xbf}
	bomUTF16LE = []byte{0xff, 0xfe}
	bomUTF16BE = []byte{0xfe, 0xff}
)

// DecodeTranscript converts raw transcript bytes to a UTF-8 string.
// Byte order marks are honoured and stripped; anything else goes through
// EnsureUTF8.
func DecodeTranscript(data []byte) string {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return EnsureUTF8(string(data[len(bomUTF8):]))
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		dec := xunicode.UTF16(xunicode.LittleEndian, xunicode.ExpectBOM).NewDecoder()
		if out, err := dec.Bytes(data); err == nil {
			return SanitizeUTF8(string(out))
		}
	}
	return EnsureUTF8(string(data))
}

// EnsureUTF8 returns s unchanged when it is valid UTF-8. Otherwise it
// tries the detected charset, then a list of common legacy encodings,
// and finally replaces invalid bytes with U+FFFD.
func EnsureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	data := []byte(s)

	// Detection is unreliable on short samples, so accept a lower score.
	minConfidence := 30
	if len(data) > 50 {
		minConfidence = 50
	}
	if result, err := chardet.NewTextDetector().DetectBest(data); err == nil && result.Confidence >= minConfidence {
		if enc := GetEncodingByName(result.Charset); enc != nil {
			if decoded, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) {
				return string(decoded)
			}
		}
	}

	// Exports saved by Windows editors are the usual culprit, so the
	// single-byte Western pages go first.
	fallbacks := []encoding.Encoding{
		charmap.Windows1252,
		charmap.ISO8859_1,
		charmap.ISO8859_15,
		japanese.ShiftJIS,
		japanese.EUCJP,
		korean.EUCKR,
		simplifiedchinese.GBK,
		traditionalchinese.Big5,
	}
	for _, enc := range fallbacks {
		if decoded, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}
	return SanitizeUTF8(s)
}

// SanitizeUTF8 replaces invalid UTF-8 bytes with the replacement character.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "\ufffd")
}

// GetEncodingByName returns an encoding for a charset name as reported by
// chardet, or nil when unsupported.
func GetEncodingByName(name string) encoding.Encoding {
	switch strings.ToLower(name) {
	case "windows-1252", "cp1252":
		return charmap.Windows1252
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15
	case "iso-8859-2", "latin2":
		return charmap.ISO8859_2
	case "windows-1251", "cp1251":
		return charmap.Windows1251
	case "koi8-r":
		return charmap.KOI8R
	case "shift_jis", "shift-jis", "sjis":
		return japanese.ShiftJIS
	case "euc-jp", "eucjp":
		return japanese.EUCJP
	case "iso-2022-jp":
		return japanese.ISO2022JP
	case "euc-kr", "euckr":
		return korean.EUCKR
	case "gb2312", "gbk":
		return simplifiedchinese.GBK
	case "gb18030":
		return simplifiedchinese.GB18030
	case "big5", "big-5":
		return traditionalchinese.Big5
	case "utf-16le":
		return xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM)
	case "utf-16be":
		return xunicode.UTF16(xunicode.BigEndian, xunicode.IgnoreBOM)
	default:
		return nil
	}
}

// FirstLine returns the first line of s, ignoring leading line breaks.
func FirstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// SanitizeTerminal makes untrusted text safe to print: ANSI escape
// sequences are removed and other control characters, newlines included,
// become spaces.
func SanitizeTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == '\x1b' {
			i += escapeLen(s[i:])
			continue
		}
		switch {
		case r == utf8.RuneError && size == 1:
			b.WriteRune('\ufffd')
		case unicode.IsControl(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

// escapeLen returns the length of the escape sequence at the start of s:
// CSI sequences up to their final byte, OSC sequences up to BEL or ST, and
// two bytes for anything else.
func escapeLen(s string) int {
	if len(s) < 2 {
		return len(s)
	}
	switch s[1] {
	case '[':
		for i := 2; i < len(s); i++ {
			if s[i] >= 0x40 && s[i] <= 0x7e {
				return i + 1
			}
		}
		return len(s)
	case ']':
		for i := 2; i < len(s); i++ {
			if s[i] == '\a' {
				return i + 1
			}
			if s[i] == '\x1b' && i+1 < len(s) && s[i+1] == '\\' {
				return i + 2
			}
		}
		return len(s)
	default:
		return 2
	}
}
