package channels

import (
	"strings"
	"testing"
)

func TestNormalizeWhatsAppNumber(t *testing.T) {
	cases := []struct {
		name        string
		raw         string
		want        string
		missingNine bool
		wantErr     bool
	}{
		{name: "full thirteen digits", raw: "+55 (11) 98888-7777", want: "5511988887777"},
		{name: "twelve digits flags ninth", raw: "551188887777", want: "551188887777", missingNine: true},
		{name: "local number gains country code", raw: "(11) 98888-7777", want: "5511988887777"},
		{name: "leading zeros stripped", raw: "011988887777", want: "5511988887777"},
		{name: "letters ignored", raw: "zap: 11 98888-7777", want: "5511988887777"},
		{name: "empty", raw: "", wantErr: true},
		{name: "punctuation only", raw: "+-() ", wantErr: true},
		{name: "too short", raw: "9888", wantErr: true},
		{name: "too long", raw: "5511988887777999", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeWhatsAppNumber(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if got.Value != tc.want {
				t.Fatalf("got %s, want %s", got.Value, tc.want)
			}
			if got.MissingNinthDigit != tc.missingNine {
				t.Fatalf("missing ninth digit = %v, want %v", got.MissingNinthDigit, tc.missingNine)
			}
		})
	}
}

func TestNormalizeSMSNumber(t *testing.T) {
	got, err := NormalizeSMSNumber("+1 (555) 000-1111")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "+15550001111" {
		t.Fatalf("got %s", got)
	}

	if _, err := NormalizeSMSNumber("12345"); err == nil {
		t.Fatal("expected error for short number")
	}
	if _, err := NormalizeSMSNumber(strings.Repeat("9", 16)); err == nil {
		t.Fatal("expected error for long number")
	}
}

func TestTruncateBody(t *testing.T) {
	body, truncated := TruncateBody("short", 100)
	if truncated || body != "short" {
		t.Fatalf("short body must pass through, got %q truncated=%v", body, truncated)
	}

	body, truncated = TruncateBody(strings.Repeat("a", 200), 100)
	if !truncated || len(body) != 100 {
		t.Fatalf("expected 100-byte cut, got %d truncated=%v", len(body), truncated)
	}

	// Rune-safe for multi-byte content.
	body, truncated = TruncateBody(strings.Repeat("ç", 200), 150)
	if !truncated {
		t.Fatal("expected truncation of multi-byte body")
	}
	if cut := []rune(body); len(cut) != 150 || cut[len(cut)-1] != 'ç' {
		t.Fatalf("expected 150 intact runes, got %d", len(cut))
	}

	body, truncated = TruncateBody("anything", 0)
	if truncated || body != "anything" {
		t.Fatal("non-positive limits disable truncation")
	}
}
