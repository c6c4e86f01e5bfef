package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/vigil/internal/history"
)

// Sink sends supervisor decision events to ClickHouse using the official
// ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Sink{conn: conn, table: table}, nil
}

// EnsureSchema creates the events table when it does not exist yet.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		occurred_at DateTime,
		type String,
		target String,
		reason String,
		restart_count UInt32
	) ENGINE = MergeTree() ORDER BY (target, occurred_at)`, s.table)
	return s.conn.Exec(ctx, query)
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (occurred_at, type, target, reason, restart_count) VALUES (?, ?, ?, ?, ?)`,
		s.table)
	return s.conn.Exec(ctx, query,
		e.OccurredAt,
		string(e.Type),
		e.Target,
		e.Reason,
		e.RestartCount,
	)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
