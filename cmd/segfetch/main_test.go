package main

import (
	"strings"
	"testing"

	"segfetch/internal/config"
	"segfetch/internal/tasklist"
)

// A single-item run missing its hash under verify=on is already covered by
// the engine's own per-download check; the gap this closes is the batch
// case, where the scheduler would otherwise launch the other items'
// engines concurrently with the offending one before it fails.
func TestRequireHashesUnderVerifyOn_MiddleItemMissingHashFailsWholeBatch(t *testing.T) {
	items := []tasklist.Item{
		{URL: "https://host/a.bin", ExpectedHash: "aaaa"},
		{URL: "https://host/b.bin"}, // missing hash
		{URL: "https://host/c.bin", ExpectedHash: "cccc"},
	}
	err := requireHashesUnderVerifyOn(items, config.ModeOn)
	if err == nil {
		t.Fatal("expected an error when one of several items lacks an expected hash under verify=on")
	}
	if !strings.Contains(err.Error(), "b.bin") {
		t.Fatalf("expected error to name the offending item, got: %v", err)
	}
}

func TestRequireHashesUnderVerifyOn_AllHashesPresentPasses(t *testing.T) {
	items := []tasklist.Item{
		{URL: "https://host/a.bin", ExpectedHash: "aaaa"},
		{URL: "https://host/b.bin", ExpectedHash: "bbbb"},
	}
	if err := requireHashesUnderVerifyOn(items, config.ModeOn); err != nil {
		t.Fatalf("expected no error when every item has a hash, got: %v", err)
	}
}

// auto and off never require a hash, regardless of how many items lack one.
func TestRequireHashesUnderVerifyOn_NonOnModesNeverRequireHash(t *testing.T) {
	items := []tasklist.Item{{URL: "https://host/a.bin"}}
	for _, mode := range []config.Mode{config.ModeAuto, config.ModeOff} {
		if err := requireHashesUnderVerifyOn(items, mode); err != nil {
			t.Fatalf("mode %s: expected no error, got: %v", mode, err)
		}
	}
}
