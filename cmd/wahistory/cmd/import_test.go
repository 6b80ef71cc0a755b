package cmd

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/wahistory/internal/source"
)

func TestParsePhoneFlags(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", values: nil, want: map[string]string{}},
		{
			name:   "trims both sides",
			values: []string{" WhatsApp Chat - Ann.txt = +1 555 0001 "},
			want:   map[string]string{"WhatsApp Chat - Ann.txt": "+1 555 0001"},
		},
		{
			name:   "punctuated numbers kept as given",
			values: []string{"Ann=+44 (0)20 7946 0000", "Bob=0049301234567"},
			want:   map[string]string{"Ann": "+44 (0)20 7946 0000", "Bob": "0049301234567"},
		},
		{name: "missing separator", values: []string{"Ann"}, wantErr: true},
		{name: "missing number", values: []string{"Ann="}, wantErr: true},
		{name: "missing file", values: []string{"=+15550001"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePhoneFlags(tt.values)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePhoneFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parsePhoneFlags() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLookupPhone(t *testing.T) {
	remote := source.ImportFile{
		Name:     "WhatsApp Chat - Ann.zip",
		Kind:     source.KindZip,
		Origin:   source.ServerPath{Path: "inbox/WhatsApp Chat - Ann.zip"},
		Identity: source.Pending{ContactName: "Ann"},
	}

	tests := []struct {
		name   string
		phones map[string]string
		want   string
	}{
		{name: "by file name", phones: map[string]string{"WhatsApp Chat - Ann.zip": "+15550001"}, want: "+15550001"},
		{name: "by path", phones: map[string]string{"inbox/WhatsApp Chat - Ann.zip": "+15550002"}, want: "+15550002"},
		{name: "by contact name", phones: map[string]string{"Ann": "+15550003"}, want: "+15550003"},
		{
			name: "file name wins over contact name",
			phones: map[string]string{
				"Ann":                     "+15550003",
				"WhatsApp Chat - Ann.zip": "+15550001",
			},
			want: "+15550001",
		},
		{name: "no match", phones: map[string]string{"Bob": "+15550004"}, want: ""},
		{name: "nil map", phones: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lookupPhone(tt.phones, remote); got != tt.want {
				t.Errorf("lookupPhone() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCandidatesFromArgs(t *testing.T) {
	cs := candidatesFromArgs([]string{"/tmp/exports/WhatsApp Chat - +15550001.zip", "chat.txt"})
	if len(cs) != 2 {
		t.Fatalf("len = %d, want 2", len(cs))
	}
	if cs[0].Name != "WhatsApp Chat - +15550001.zip" {
		t.Errorf("Name = %q", cs[0].Name)
	}
	h, ok := cs[1].Origin.(source.Handle)
	if !ok {
		t.Fatalf("Origin = %T, want source.Handle", cs[1].Origin)
	}
	if h.Name != "chat.txt" {
		t.Errorf("handle name = %q", h.Name)
	}
}
