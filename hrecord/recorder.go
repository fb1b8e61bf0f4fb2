// Package hrecord persists received samples to SQLite,
// so a reader's traffic can be replayed after the fact.
// Uses WAL mode for concurrent reads and crash-safe writes.
package hrecord

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/heron-dds/heron/hguid"
	"github.com/heron-dds/heron/hseq"
)

// Recorder wraps a SQLite connection holding recorded samples.
type Recorder struct {
	db *sql.DB
}

// Sample is one recorded sample.
type Sample struct {
	Writer     hguid.GUID
	Seq        hseq.Number
	Payload    []byte
	RecordedAt time.Time
}

// Open creates or opens the recording database at path.
// Enables WAL mode and a 5-second busy timeout.
func Open(path string) (*Recorder, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	r := &Recorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return r, nil
}

// Close cleanly shuts down the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// migrate runs idempotent schema migrations.
func (r *Recorder) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS samples (
			writer_guid TEXT    NOT NULL,
			seq         INTEGER NOT NULL,
			payload     BLOB    NOT NULL,
			recorded_at INTEGER NOT NULL,
			PRIMARY KEY (writer_guid, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_recorded ON samples(recorded_at)`,
	}

	for _, m := range migrations {
		if _, err := r.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Record stores one sample.
// At-least-once delivery means duplicates arrive;
// a sample already recorded under (writer, seq) is kept as-is.
func (r *Recorder) Record(
	writer hguid.GUID,
	seq hseq.Number,
	payload []byte,
	at time.Time,
) error {
	_, err := r.db.Exec(
		`INSERT INTO samples (writer_guid, seq, payload, recorded_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(writer_guid, seq) DO NOTHING`,
		writer.String(), int64(seq), payload, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record sample: %w", err)
	}
	return nil
}

// Replay returns the samples recorded from writer
// at and above fromSeq, in sequence order.
func (r *Recorder) Replay(writer hguid.GUID, fromSeq hseq.Number) ([]Sample, error) {
	rows, err := r.db.Query(
		`SELECT seq, payload, recorded_at FROM samples
		 WHERE writer_guid = ? AND seq >= ?
		 ORDER BY seq ASC`,
		writer.String(), int64(fromSeq),
	)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		s := Sample{Writer: writer}
		var seq, at int64
		if err := rows.Scan(&seq, &s.Payload, &at); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		s.Seq = hseq.Number(seq)
		s.RecordedAt = time.UnixMilli(at)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Count returns the number of recorded samples across all writers.
func (r *Recorder) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM samples`).Scan(&n)
	return n, err
}
