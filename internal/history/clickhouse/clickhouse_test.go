package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/vigil/internal/history"
)

// setupClickHouseContainer starts a ClickHouse container for testing.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	clickHouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start ClickHouse container: %v", err)
	}

	host, err := clickHouseContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := clickHouseContainer.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	return clickHouseContainer, host + ":" + port.Port()
}

func TestClickHouseSink_SendEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()
	container, addr := setupClickHouseContainer(ctx, t)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	sink, err := New(addr, "supervisor_events")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	if err := sink.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	events := []history.Event{
		{Type: history.EventSleepDetected, OccurredAt: time.Now(), Target: "relay", Reason: "wall/uptime gap 570s"},
		{Type: history.EventRestartSucceeded, OccurredAt: time.Now(), Target: "relay", RestartCount: 1},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send %s: %v", e.Type, err)
		}
	}

	var count uint64
	row := sink.conn.QueryRow(ctx, `SELECT COUNT(*) FROM supervisor_events WHERE target = 'relay'`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != uint64(len(events)) {
		t.Fatalf("rows = %d, want %d", count, len(events))
	}
}
