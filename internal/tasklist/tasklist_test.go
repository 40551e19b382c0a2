package tasklist

import (
	"strings"
	"testing"
)

func TestParseURLOnly(t *testing.T) {
	items, err := Parse(strings.NewReader("http://host/a.bin\n\nhttp://host/b.bin\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].URL != "http://host/a.bin" || items[0].ExpectedHash != "" {
		t.Fatalf("unexpected item 0: %+v", items[0])
	}
}

func TestParseURLWithHash(t *testing.T) {
	hash := strings.Repeat("ab", 32)
	items, err := Parse(strings.NewReader("  http://host/a.bin  |  " + strings.ToUpper(hash) + "  \n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if items[0].URL != "http://host/a.bin" {
		t.Fatalf("expected trimmed url, got %q", items[0].URL)
	}
	if items[0].ExpectedHash != hash {
		t.Fatalf("expected lowercased hash, got %q", items[0].ExpectedHash)
	}
}

func TestParseRejectsBadHashLength(t *testing.T) {
	if _, err := Parse(strings.NewReader("http://host/a.bin|deadbeef\n")); err == nil {
		t.Fatal("expected error for short hash")
	}
}

func TestParseRejectsNonHexHash(t *testing.T) {
	bad := strings.Repeat("zz", 32)
	if _, err := Parse(strings.NewReader("http://host/a.bin|" + bad + "\n")); err == nil {
		t.Fatal("expected error for non-hex hash")
	}
}

func TestParseRejectsExtraColumns(t *testing.T) {
	if _, err := Parse(strings.NewReader("http://host/a.bin|deadbeef|extra\n")); err == nil {
		t.Fatal("expected error for unrecognized trailing column")
	}
}

func TestParseRejectsEmptyURLWithHash(t *testing.T) {
	if _, err := Parse(strings.NewReader("|" + strings.Repeat("ab", 32) + "\n")); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestParseIgnoresBlankLines(t *testing.T) {
	items, err := Parse(strings.NewReader("\n\n   \nhttp://host/a.bin\n\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}
