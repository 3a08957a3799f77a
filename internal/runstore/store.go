package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"brepdiff/internal/config"
)

// Run is one recorded experiment: a named, validated configuration
// snapshot plus the headline fields used for listing.
type Run struct {
	ID                string
	Name              string
	Dataset           string
	BatchSize         int
	TrainingTimesteps int
	ConfigJSON        string
	CreatedAt         time.Time
}

// Store manages run persistence backed by SQLite. Writes are serialized
// across processes with a lock file next to the database.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

// Open initializes or connects to the run database in dir and applies the
// schema.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directory %q: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "runs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:   db,
		path: dbPath,
		lock: flock.New(filepath.Join(dir, "runs.lock")),
	}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record persists a validated configuration under a fresh run ID.
func (s *Store) Record(ctx context.Context, name string, cfg *config.Config) (*Run, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	snapshot, err := json.Marshal(cfg.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshal config snapshot: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO runs (id, name, dataset, batch_size, training_timesteps, config_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		name,
		cfg.Data.Dataset,
		cfg.Training.BatchSize,
		cfg.Diffusion.TrainingTimesteps,
		string(snapshot),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a run by identifier, or nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List returns all runs, newest first.
func (s *Store) List(ctx context.Context) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Prune deletes all but the newest keep runs and reports how many were
// removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, errors.New("keep must be >= 0")
	}
	if err := s.lock.Lock(); err != nil {
		return 0, fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM runs WHERE id NOT IN (
            SELECT id FROM runs ORDER BY created_at DESC, id LIMIT ?
        )`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of runs grouped by dataset.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT dataset, COUNT(1) FROM runs GROUP BY dataset`)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var dataset string
		var count int
		if err := rows.Scan(&dataset, &count); err != nil {
			return nil, err
		}
		stats[dataset] = count
	}
	return stats, rows.Err()
}

const runColumns = "id, name, dataset, batch_size, training_timesteps, config_json, created_at"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run        Run
		createdRaw string
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Name,
		&run.Dataset,
		&run.BatchSize,
		&run.TrainingTimesteps,
		&run.ConfigJSON,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		run.CreatedAt = created
	}
	return &run, nil
}
