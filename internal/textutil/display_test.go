package textutil

import (
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"日本語テキスト", 7, "日本..."},
		{"日本語", 6, "日本語"},
		{"abc", 2, "ab"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncateWidth(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestPadRight(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"Ann", 6, "Ann   "},
		{"日本", 6, "日本  "},
		{"Alexandria", 6, "Ale..."},
	}
	for _, tt := range tests {
		got := PadRight(tt.in, tt.width)
		if got != tt.want {
			t.Errorf("PadRight(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
		if w := runewidth.StringWidth(got); w != tt.width {
			t.Errorf("PadRight(%q, %d) is %d cells wide", tt.in, tt.width, w)
		}
	}
}
