package whatsapp

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/wesm/wahistory/internal/phone"
)

// NameUpdater sets a chat's display name by phone number. It reports
// whether a chat matched; chats are never created.
type NameUpdater interface {
	UpdateChatNameByPhone(ctx context.Context, phoneNumber, name string) (bool, error)
}

// vcardContact represents a parsed contact from a vCard file.
type vcardContact struct {
	FullName string
	Phones   []string // normalized to E.164
}

// ImportContacts reads a .vcf file and names existing chats whose phone
// number matches a contact. Returns the number of chats renamed and the
// number of contacts in the file.
func ImportContacts(ctx context.Context, u NameUpdater, vcfPath string) (matched, total int, err error) {
	contacts, err := parseVCardFile(vcfPath)
	if err != nil {
		return 0, 0, fmt.Errorf("parse vcard: %w", err)
	}

	total = len(contacts)
	for _, c := range contacts {
		if c.FullName == "" {
			continue
		}
		for _, p := range c.Phones {
			updated, err := u.UpdateChatNameByPhone(ctx, p, c.FullName)
			if err != nil {
				return matched, total, fmt.Errorf("update chat %s: %w", p, err)
			}
			if updated {
				matched++
			}
		}
	}
	return matched, total, nil
}

// parseVCardFile reads a .vcf file and returns parsed contacts.
// Handles vCard 2.1 and 3.0, folded lines and quoted-printable names.
func parseVCardFile(path string) ([]vcardContact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Increase buffer for long lines (e.g., base64-encoded photos).
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var logical []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		n := len(logical)
		switch {
		case n > 0 && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")):
			// RFC 2425 folding: leading whitespace is dropped.
			logical[n-1] += strings.TrimLeft(line, " \t")
		case n > 0 && isQuotedPrintable(logical[n-1]) && strings.HasSuffix(logical[n-1], "="):
			// Quoted-printable soft line break.
			logical[n-1] = strings.TrimSuffix(logical[n-1], "=") + line
		default:
			logical = append(logical, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan vcard: %w", err)
	}

	var contacts []vcardContact
	var current *vcardContact
	for _, raw := range logical {
		line := strings.TrimSpace(raw)
		upper := strings.ToUpper(line)
		switch {
		case upper == "BEGIN:VCARD":
			current = &vcardContact{}

		case upper == "END:VCARD":
			if current != nil && (current.FullName != "" || len(current.Phones) > 0) {
				contacts = append(contacts, *current)
			}
			current = nil

		case current == nil:
			continue

		case strings.HasPrefix(upper, "FN:") || strings.HasPrefix(upper, "FN;"):
			name := extractVCardValue(line)
			if isQuotedPrintable(line) {
				name = decodeQuotedPrintable(name)
			}
			if name != "" {
				current.FullName = name
			}

		case strings.HasPrefix(upper, "TEL"):
			if p := phone.Normalize(extractVCardValue(line)); p != "" {
				current.Phones = append(current.Phones, p)
			}
		}
	}
	return contacts, nil
}

// extractVCardValue extracts the value part from a vCard line.
// Handles both "KEY:value" and "KEY;params:value" formats.
func extractVCardValue(line string) string {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(line[idx+1:])
}

func isQuotedPrintable(line string) bool {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return false
	}
	return strings.Contains(strings.ToUpper(line[:idx]), "QUOTED-PRINTABLE")
}

// decodeQuotedPrintable decodes =XX escapes. Malformed escapes are kept
// literally.
func decodeQuotedPrintable(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '=' && i+2 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(v))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
