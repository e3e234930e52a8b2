package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitWithOptionsLevels(t *testing.T) {
	t.Cleanup(func() { Replace(nil) })

	if err := InitWithOptions(Options{Level: "debug"}); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !Logger().Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}

	if err := InitWithOptions(Options{Level: "loud", Format: "console"}); err != nil {
		t.Fatalf("init console: %v", err)
	}
	if Logger().Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected unknown level to fall back to info")
	}
	if !Logger().Core().Enabled(zap.InfoLevel) {
		t.Fatal("expected info level to be enabled")
	}
}

func TestReplaceNilInstallsNop(t *testing.T) {
	Replace(nil)
	if Logger() == nil {
		t.Fatal("expected a usable logger")
	}
	if Logger().Core().Enabled(zap.ErrorLevel) {
		t.Fatal("expected nop logger")
	}
}

func TestWithModuleAttachesModuleField(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	t.Cleanup(func() { Replace(nil) })
	Replace(zap.New(core))

	WithModule("registration").Info("registration accepted", Emails("to", "ada@example.edu"))

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["module"] != "registration" {
		t.Fatalf("expected module field, got %v", fields["module"])
	}
	to, ok := fields["to"].([]interface{})
	if !ok || len(to) != 1 || to[0] != "a***@example.edu" {
		t.Fatalf("expected masked recipient, got %#v", fields["to"])
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"grace@example.edu": "g***@example.edu",
		" board@csa.edu ":   "b***@csa.edu",
		"not-an-address":    "***",
		"@example.edu":      "***",
		"a@b@example.edu":   "a***@example.edu",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
