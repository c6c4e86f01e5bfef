package factory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/vigil/internal/history"
)

func TestNewSinkFromDSN_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	sink, err := NewSinkFromDSN("sqlite://" + path)
	if err != nil {
		t.Fatalf("sqlite sink: %v", err)
	}
	e := history.Event{Type: history.EventTargetDown, OccurredAt: time.Now(), Target: "relay"}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestNewSinkFromDSN_BarePathIsSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	if _, err := NewSinkFromDSN(path); err != nil {
		t.Fatalf("bare path should select sqlite: %v", err)
	}
}

func TestNewSinkFromDSN_Unsupported(t *testing.T) {
	if _, err := NewSinkFromDSN("redis://localhost:6379"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestNewSinkFromDSN_Empty(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}

func TestNewSinkFromDSN_OpenSearch(t *testing.T) {
	sink, err := NewSinkFromDSN("opensearch://search.internal:9200/audit")
	if err != nil {
		t.Fatalf("opensearch sink: %v", err)
	}
	if sink == nil {
		t.Fatal("nil sink")
	}
}

func TestParseOpenSearchDSN(t *testing.T) {
	baseURL, index, err := parseOpenSearchDSN("opensearch://search.internal:9200/audit")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if baseURL != "http://search.internal:9200" || index != "audit" {
		t.Fatalf("got baseURL=%s index=%s", baseURL, index)
	}

	baseURL, index, err = parseOpenSearchDSN("opensearch://search.internal:9200?secure=true")
	if err != nil {
		t.Fatalf("parse secure: %v", err)
	}
	if baseURL != "https://search.internal:9200" || index != "supervisor-events" {
		t.Fatalf("secure defaults: baseURL=%s index=%s", baseURL, index)
	}

	if _, _, err := parseOpenSearchDSN("opensearch://"); err == nil {
		t.Fatal("expected error for missing host")
	}
}

func TestParseClickHouseDSN(t *testing.T) {
	addr, table, err := parseClickHouseDSN("clickhouse://ch.internal:9000?table=audit")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if addr != "ch.internal:9000" || table != "audit" {
		t.Fatalf("got addr=%s table=%s", addr, table)
	}

	addr, table, err = parseClickHouseDSN("clickhouse://")
	if err != nil {
		t.Fatalf("parse defaults: %v", err)
	}
	if addr != "localhost:9000" || table != "supervisor_events" {
		t.Fatalf("defaults: addr=%s table=%s", addr, table)
	}
}
