package util

import (
	"strings"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "invoice-2024.pdf", want: "invoice-2024.pdf"},
		{name: "unix path", in: "../../etc/passwd", want: "passwd"},
		{name: "windows path", in: `C:\Users\me\receipt.png`, want: "receipt.png"},
		{name: "spaces and symbols", in: "Q1 statement (final).pdf", want: "Q1_statement__final_.pdf"},
		{name: "hidden file", in: ".env", want: "env"},
		{name: "empty", in: "   ", wantErr: true},
		{name: "only dots", in: "..", wantErr: true},
		{name: "only symbols", in: "$$$", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := SanitizeFileName(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("SanitizeFileName(%q) expected error, got %q", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SanitizeFileName(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("SanitizeFileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFileNameTruncatesKeepingExtension(t *testing.T) {
	got, err := SanitizeFileName(strings.Repeat("a", 400) + ".pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != maxFileNameLen {
		t.Fatalf("expected length %d, got %d", maxFileNameLen, len(got))
	}
	if !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("expected .pdf suffix, got %q", got)
	}
}
