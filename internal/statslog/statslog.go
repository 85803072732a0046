// Package statslog persists periodic udp-lan-stats and
// lan-input-server-stats snapshots to PostgreSQL so stream quality can be
// graphed after the fact instead of only observed live. Grounded on the
// teacher's pkg/persistence/postgres.go (same connect/ping/pool-tuning/
// InitSchema shape), repurposed from peer/session/challenge rows to
// append-only stats rows.
package statslog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Config mirrors the teacher's persistence.Config field-for-field.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Store appends UDP receiver and input server stats snapshots to Postgres.
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// New connects, pings, and ensures the schema exists.
func New(cfg Config, log *zap.SugaredLogger) (*Store, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("statslog: failed to open connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("statslog: failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, log: log}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("statslog: failed to initialize schema: %w", err)
	}

	log.Infow("statslog: connected to postgres", "host", cfg.Host, "dbname", cfg.DBName)
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS udp_receiver_stats (
		id               BIGSERIAL PRIMARY KEY,
		stream_id        VARCHAR(32) NOT NULL,
		recorded_at      TIMESTAMP NOT NULL DEFAULT NOW(),
		packets_received BIGINT NOT NULL,
		frames_completed BIGINT NOT NULL,
		frames_dropped   BIGINT NOT NULL,
		jitter_ms        DOUBLE PRECISION NOT NULL,
		pending_frames   INTEGER NOT NULL,
		loss_pct         DOUBLE PRECISION NOT NULL,
		fps_assembled    DOUBLE PRECISION NOT NULL,
		bitrate_kbps     DOUBLE PRECISION NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_udp_receiver_stats_stream_time
		ON udp_receiver_stats(stream_id, recorded_at);

	CREATE TABLE IF NOT EXISTS input_server_stats (
		id                BIGSERIAL PRIMARY KEY,
		recorded_at       TIMESTAMP NOT NULL DEFAULT NOW(),
		authenticated     INTEGER NOT NULL,
		events_received   BIGINT NOT NULL,
		events_injected   BIGINT NOT NULL,
		events_dropped    BIGINT NOT NULL,
		inject_errors     BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_input_server_stats_time ON input_server_stats(recorded_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// UDPReceiverSnapshot is the subset of udp-lan-stats persisted per tick.
type UDPReceiverSnapshot struct {
	StreamID        string
	PacketsReceived uint64
	FramesCompleted uint64
	FramesDropped   uint64
	JitterMs        float64
	PendingFrames   int
	LossPct         float64
	FpsAssembled    float64
	BitrateKbps     float64
}

// AppendUDPReceiverStats inserts one row. The bus subscriber in
// cmd/corelan logs and swallows failures, so they never interrupt the
// reassembly loop that produced the snapshot.
func (s *Store) AppendUDPReceiverStats(snap UDPReceiverSnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO udp_receiver_stats
			(stream_id, packets_received, frames_completed, frames_dropped,
			 jitter_ms, pending_frames, loss_pct, fps_assembled, bitrate_kbps)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		snap.StreamID, snap.PacketsReceived, snap.FramesCompleted, snap.FramesDropped,
		snap.JitterMs, snap.PendingFrames, snap.LossPct, snap.FpsAssembled, snap.BitrateKbps,
	)
	return err
}

// InputServerSnapshot is the subset of lan-input-server-stats persisted per tick.
type InputServerSnapshot struct {
	Authenticated  int
	EventsReceived uint64
	EventsInjected uint64
	EventsDropped  uint64
	InjectErrors   uint64
}

// AppendInputServerStats inserts one row.
func (s *Store) AppendInputServerStats(snap InputServerSnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO input_server_stats
			(authenticated, events_received, events_injected, events_dropped, inject_errors)
		VALUES ($1, $2, $3, $4, $5)`,
		snap.Authenticated, snap.EventsReceived, snap.EventsInjected, snap.EventsDropped, snap.InjectErrors,
	)
	return err
}

// PruneOlderThan deletes rows older than the retention window, mirroring
// the teacher's DeleteStalePeers/DeleteExpiredSessions housekeeping calls.
func (s *Store) PruneOlderThan(retention time.Duration) (int, error) {
	threshold := time.Now().Add(-retention)

	res, err := s.db.Exec(`DELETE FROM udp_receiver_stats WHERE recorded_at < $1`, threshold)
	if err != nil {
		return 0, err
	}
	n1, _ := res.RowsAffected()

	res, err = s.db.Exec(`DELETE FROM input_server_stats WHERE recorded_at < $1`, threshold)
	if err != nil {
		return int(n1), err
	}
	n2, _ := res.RowsAffected()

	return int(n1 + n2), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
