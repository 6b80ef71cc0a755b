package whatsapp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeVCF(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.vcf")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleVCF = `BEGIN:VCARD
VERSION:2.1
N:Okafor;Chidi;;;
FN:Chidi Okafor
TEL;CELL:+2348031234567
END:VCARD
BEGIN:VCARD
VERSION:2.1
FN:Marta Kowalska
TEL;X-Mobile:0048 601 234 567
END:VCARD
BEGIN:VCARD
VERSION:2.1
FN:Local Only
TEL;CELL:077-380-06043
END:VCARD
BEGIN:VCARD
VERSION:2.1
TEL;CELL:
END:VCARD
BEGIN:VCARD
VERSION:3.0
FN:Two Numbers
TEL;TYPE=CELL:+447700900001
TEL;TYPE=WORK:+44 (0)20 7123 4567
END:VCARD
`

func TestParseVCardFile(t *testing.T) {
	contacts, err := parseVCardFile(writeVCF(t, sampleVCF))
	if err != nil {
		t.Fatalf("parseVCardFile() error: %v", err)
	}

	want := []vcardContact{
		{FullName: "Chidi Okafor", Phones: []string{"+2348031234567"}},
		{FullName: "Marta Kowalska", Phones: []string{"+48601234567"}},
		{FullName: "Local Only"},
		{FullName: "Two Numbers", Phones: []string{"+447700900001", "+442071234567"}},
	}
	if diff := cmp.Diff(want, contacts); diff != "" {
		t.Errorf("contacts mismatch (-want +got):\n%s", diff)
	}
}

func TestParseVCardFile_FoldedAndEncoded(t *testing.T) {
	vcf := "BEGIN:VCARD\r\n" +
		"VERSION:2.1\r\n" +
		"FN:José\r\n" +
		" García\r\n" +
		"TEL;CELL:+34\r\n" +
		" 612345678\r\n" +
		"END:VCARD\r\n" +
		"BEGIN:VCARD\r\n" +
		"VERSION:2.1\r\n" +
		"FN;ENCODING=QUOTED-PRINTABLE:Ren=C3=A9 Dupont\r\n" +
		"TEL;CELL:+33612345678\r\n" +
		"END:VCARD\r\n"

	contacts, err := parseVCardFile(writeVCF(t, vcf))
	if err != nil {
		t.Fatalf("parseVCardFile() error: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts, want 2", len(contacts))
	}
	// Folding drops the leading whitespace of the continuation.
	if contacts[0].FullName != "JoséGarcía" {
		t.Errorf("folded name = %q, want %q", contacts[0].FullName, "JoséGarcía")
	}
	if diff := cmp.Diff([]string{"+34612345678"}, contacts[0].Phones); diff != "" {
		t.Errorf("folded phone mismatch (-want +got):\n%s", diff)
	}
	if contacts[1].FullName != "René Dupont" {
		t.Errorf("QP name = %q, want %q", contacts[1].FullName, "René Dupont")
	}
}

func TestParseVCardFile_QPSoftBreaks(t *testing.T) {
	vcf := "BEGIN:VCARD\r\n" +
		"VERSION:2.1\r\n" +
		"FN;ENCODING=QUOTED-PRINTABLE:Jo=C3=A3o da =\r\n" +
		"Silva\r\n" +
		"TEL;CELL:+5511999887766\r\n" +
		"END:VCARD\r\n"

	contacts, err := parseVCardFile(writeVCF(t, vcf))
	if err != nil {
		t.Fatalf("parseVCardFile() error: %v", err)
	}
	if len(contacts) != 1 {
		t.Fatalf("got %d contacts, want 1", len(contacts))
	}
	if want := "João da Silva"; contacts[0].FullName != want {
		t.Errorf("soft break name = %q, want %q", contacts[0].FullName, want)
	}
}

func TestDecodeQuotedPrintable(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain", "plain"},
		{"Ren=C3=A9", "René"},
		{"=C3=A9=C3=A8", "éè"},
		{"a=zz", "a=zz"},
		{"tail=", "tail="},
		{"tail=4", "tail=4"},
	}
	for _, tt := range tests {
		if got := decodeQuotedPrintable(tt.input); got != tt.want {
			t.Errorf("decodeQuotedPrintable(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestExtractVCardValue(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"FN:Ada Lovelace", "Ada Lovelace"},
		{"FN;CHARSET=UTF-8:Ada Lovelace", "Ada Lovelace"},
		{"TEL;TYPE=CELL: +447700900000 ", "+447700900000"},
		{"TEL:+447700900000", "+447700900000"},
		{"NO_COLON", ""},
	}
	for _, tt := range tests {
		if got := extractVCardValue(tt.line); got != tt.want {
			t.Errorf("extractVCardValue(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

type fakeNameUpdater struct {
	known   map[string]string
	calls   int
	failOn  string
	renamed map[string]string
}

func (f *fakeNameUpdater) UpdateChatNameByPhone(_ context.Context, phoneNumber, name string) (bool, error) {
	f.calls++
	if phoneNumber == f.failOn {
		return false, errors.New("db closed")
	}
	if _, ok := f.known[phoneNumber]; !ok {
		return false, nil
	}
	if f.renamed == nil {
		f.renamed = make(map[string]string)
	}
	f.renamed[phoneNumber] = name
	return true, nil
}

func TestImportContacts(t *testing.T) {
	u := &fakeNameUpdater{known: map[string]string{
		"+2348031234567": "",
		"+442071234567":  "",
	}}

	matched, total, err := ImportContacts(context.Background(), u, writeVCF(t, sampleVCF))
	if err != nil {
		t.Fatalf("ImportContacts() error: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if matched != 2 {
		t.Errorf("matched = %d, want 2", matched)
	}
	want := map[string]string{
		"+2348031234567": "Chidi Okafor",
		"+442071234567":  "Two Numbers",
	}
	if diff := cmp.Diff(want, u.renamed); diff != "" {
		t.Errorf("renamed mismatch (-want +got):\n%s", diff)
	}
	// Local Only has no usable number; 4 normalized numbers in total.
	if u.calls != 4 {
		t.Errorf("updater calls = %d, want 4", u.calls)
	}
}

func TestImportContactsErrors(t *testing.T) {
	if _, _, err := ImportContacts(context.Background(), &fakeNameUpdater{}, filepath.Join(t.TempDir(), "missing.vcf")); err == nil {
		t.Error("expected error for missing file")
	}

	u := &fakeNameUpdater{failOn: "+48601234567"}
	_, _, err := ImportContacts(context.Background(), u, writeVCF(t, sampleVCF))
	if err == nil {
		t.Fatal("expected updater error to propagate")
	}
}
