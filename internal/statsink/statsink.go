// Package statsink periodically persists tunnel operational counters to
// PostgreSQL using the plain database/sql + lib/pq idiom. Entirely
// optional — the tunnel runs identically with config.Postgres left unset.
package statsink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/didierodjou/televkvpn/internal/config"
	"github.com/didierodjou/televkvpn/internal/metrics"
)

// Sink owns the Postgres connection and the periodic flush loop.
type Sink struct {
	db       *sql.DB
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New opens the Postgres connection, initializes the schema, and returns a
// Sink ready for Start. Connection failures are returned, not logged, so
// the caller decides whether a broken stats sink should be fatal.
func New(cfg config.PostgresConfig) (*Sink, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("statsink: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("statsink: ping: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	sink := &Sink{db: db, interval: cfg.FlushInterval}
	if err := sink.initSchema(); err != nil {
		return nil, fmt.Errorf("statsink: init schema: %w", err)
	}
	return sink, nil
}

func (s *Sink) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS traffic_snapshots (
		id SERIAL PRIMARY KEY,
		recorded_at TIMESTAMP NOT NULL DEFAULT NOW(),
		packets_sent BIGINT NOT NULL,
		packets_received BIGINT NOT NULL,
		batches_dropped BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_traffic_snapshots_recorded_at ON traffic_snapshots(recorded_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Start launches the periodic flush loop. Flush failures are swallowed:
// a dropped database connection must never take the tunnel down with it.
func (s *Sink) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	interval := s.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.flush()
			}
		}
	}()
}

func (s *Sink) flush() error {
	snap := metrics.Snap()
	_, err := s.db.Exec(
		`INSERT INTO traffic_snapshots (packets_sent, packets_received, batches_dropped) VALUES ($1, $2, $3)`,
		int64(snap.PacketsSent), int64(snap.PacketsReceived), int64(snap.BatchesDropped),
	)
	return err
}

// Stop cancels the flush loop, waits for it to exit, and closes the
// database connection.
func (s *Sink) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	_ = s.db.Close()
}

// Snapshot is one stored row of traffic counters. RecentSnapshots returns
// the most recent n of them, newest first; the CLI's `status` verb prints
// them when a postgres host is configured.
type Snapshot struct {
	RecordedAt      time.Time
	PacketsSent     int64
	PacketsReceived int64
	BatchesDropped  int64
}

func (s *Sink) RecentSnapshots(ctx context.Context, n int) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recorded_at, packets_sent, packets_received, batches_dropped
		 FROM traffic_snapshots ORDER BY recorded_at DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("statsink: query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.RecordedAt, &snap.PacketsSent, &snap.PacketsReceived, &snap.BatchesDropped); err != nil {
			return nil, fmt.Errorf("statsink: scan snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
