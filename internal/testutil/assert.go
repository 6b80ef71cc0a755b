package testutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// MustNoErr stops the test when a setup step fails.
func MustNoErr(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// AssertStrings compares string slices element by element, quoting values
// in failures so stray whitespace shows.
func AssertStrings(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("got %d strings %q, want %d %q", len(got), got, len(want), want)
		return
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// AssertValidUTF8 fails if s is not valid UTF-8.
func AssertValidUTF8(t *testing.T, s string) {
	t.Helper()
	if !utf8.ValidString(s) {
		t.Errorf("invalid UTF-8: %q", s)
	}
}

// AssertContainsAll fails for each of subs missing from got.
func AssertContainsAll(t *testing.T, got string, subs []string) {
	t.Helper()
	for _, sub := range subs {
		if !strings.Contains(got, sub) {
			t.Errorf("%q does not contain %q", got, sub)
		}
	}
}
