package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuditPath_WithDirOnly(t *testing.T) {
	c := Config{Dir: "/var/log/vigil"}
	got := c.AuditPath("relay")
	want := filepath.Join("/var/log/vigil", "relay.audit.log")
	if got != want {
		t.Fatalf("AuditPath = %q, want %q", got, want)
	}
}

func TestAuditPath_ExplicitOverridesDir(t *testing.T) {
	c := Config{Dir: "/var/log/vigil", Path: "/tmp/custom.log"}
	if got := c.AuditPath("relay"); got != "/tmp/custom.log" {
		t.Fatalf("AuditPath = %q, want explicit path", got)
	}
}

func TestAuditWriter_NoDestination(t *testing.T) {
	if w := (Config{}).AuditWriter("relay"); w != nil {
		t.Fatalf("expected nil writer without dir or path")
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"info":    "INFO",
		"warn":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range cases {
		if got := (Config{Level: in}).SlogLevel().String(); got != want {
			t.Fatalf("SlogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNew_WritesAuditFileAndConsole(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	log, closer := New("relay", Config{Dir: dir}, &console)

	log.Info("healthy", "tick", 1)
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "relay.audit.log"))
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(data), "msg=healthy") || !strings.Contains(string(data), "target=relay") {
		t.Fatalf("audit line missing fields: %s", data)
	}
	if !strings.Contains(console.String(), "healthy") {
		t.Fatalf("console output missing record: %s", console.String())
	}
}

func TestNew_NoDestinationsDiscards(t *testing.T) {
	log, closer := New("relay", Config{}, nil)
	log.Info("dropped")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
