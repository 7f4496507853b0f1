package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/tnunamak/tokentorch/internal/forecast"
)

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id    TEXT NOT NULL,
	recorded_at INTEGER NOT NULL,
	kind        TEXT NOT NULL,
	utilization REAL NOT NULL,
	projected   REAL NOT NULL,
	severity    TEXT NOT NULL,
	resets_at   TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_samples_recorded_at ON samples(recorded_at);
`

// Sample is one recorded bar from a successful poll.
type Sample struct {
	CycleID     string            `json:"cycle_id"`
	RecordedAt  time.Time         `json:"recorded_at"`
	Kind        string            `json:"kind"`
	Utilization float64           `json:"utilization"`
	Projected   float64           `json:"projected"`
	Severity    forecast.Severity `json:"severity"`
	ResetsAt    string            `json:"resets_at"`
	Error       string            `json:"error,omitempty"`
}

// KindError marks a row recorded for a failed poll.
const KindError = "error"

// Store persists evaluated bars in a local SQLite database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}, nil
}

// Record stores one row per present bar, or a single error row for a failed
// poll. A successful poll with no bars records nothing.
func (s *Store) Record(ctx context.Context, cycleID string, state forecast.State) error {
	if state.IsError() {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO samples (cycle_id, recorded_at, kind, utilization, projected, severity, resets_at, error)
			VALUES (?, ?, ?, 0, 0, ?, '', ?)`,
			cycleID, state.LastUpdated.UnixMilli(), KindError, forecast.Gray.String(), state.Error)
		if err != nil {
			return fmt.Errorf("insert error sample: %w", err)
		}
		return nil
	}

	bars := state.Bars()
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (cycle_id, recorded_at, kind, utilization, projected, severity, resets_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		_, err := stmt.ExecContext(ctx,
			cycleID,
			state.LastUpdated.UnixMilli(),
			bar.Label,
			bar.Utilization,
			bar.Projected,
			bar.Color.String(),
			bar.ResetsAt,
		)
		if err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit samples, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id, recorded_at, kind, utilization, projected, severity, resets_at, error
		FROM samples
		ORDER BY recorded_at DESC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var (
			smp      Sample
			recorded int64
			severity string
		)
		if err := rows.Scan(&smp.CycleID, &recorded, &smp.Kind, &smp.Utilization,
			&smp.Projected, &severity, &smp.ResetsAt, &smp.Error); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smp.RecordedAt = time.UnixMilli(recorded)
		if err := smp.Severity.UnmarshalText([]byte(severity)); err != nil {
			s.logger.Warn().Str("severity", severity).Msg("Unknown severity in history row")
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// Prune deletes samples recorded before the cutoff and returns how many
// rows were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE recorded_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune samples: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
