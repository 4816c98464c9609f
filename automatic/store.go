package automatic

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run TEXT NOT NULL,
	game INTEGER NOT NULL,
	seed TEXT NOT NULL,
	pieces INTEGER NOT NULL,
	lines INTEGER NOT NULL,
	spins INTEGER NOT NULL,
	perfect_clears INTEGER NOT NULL,
	died INTEGER NOT NULL,
	max_height INTEGER NOT NULL,
	seconds REAL NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS games_run ON games(run);
`

// ResultStore keeps autoplay results in a sqlite database so runs can be
// compared later.
type ResultStore struct {
	db *sql.DB
}

func OpenResultStore(ctx context.Context, path string) (*ResultStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	return s.db.Close()
}

func (s *ResultStore) Record(ctx context.Context, run string, rec *GameRecord) error {
	died := 0
	if rec.Died {
		died = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO games (run, game, seed, pieces, lines, spins, perfect_clears, died, max_height, seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run, rec.ID, rec.Seed, rec.Pieces, rec.Lines, rec.Spins, rec.PerfectClears, died,
		rec.MaxHeight, rec.Seconds, time.Now().UTC().Format(time.RFC3339))
	return err
}

// RunSummary aggregates the games of one run.
type RunSummary struct {
	Run        string
	Games      int
	Deaths     int
	MeanPieces float64
	MeanLines  float64
}

func (s *ResultStore) Summary(ctx context.Context, run string) (RunSummary, error) {
	sum := RunSummary{Run: run}
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(died), 0), COALESCE(AVG(pieces), 0), COALESCE(AVG(lines), 0)
		FROM games WHERE run = ?`, run)
	err := row.Scan(&sum.Games, &sum.Deaths, &sum.MeanPieces, &sum.MeanLines)
	return sum, err
}

// Runs lists the recorded runs, oldest first.
func (s *ResultStore) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run FROM games GROUP BY run ORDER BY MIN(id)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
