package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/matiasleandrokruk/notepilot/internal/version"
)

func TestRun_Version(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if code := run([]string{"--version"}, &out); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if got := strings.TrimSpace(out.String()); got != version.String() {
		t.Errorf("output = %q, want %q", got, version.String())
	}
}

func TestRun_Help(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if code := run([]string{"--help"}, &out); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	for _, want := range []string{"NotePilot", "serve", "--version"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("help output missing %q", want)
		}
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if code := run([]string{"frobnicate"}, &out); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Errorf("output = %q, want unknown command notice", out.String())
	}
}

func TestRun_BadFlag(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	if code := run([]string{"--frobnicate"}, &out); code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}
