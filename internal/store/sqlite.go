package store

import (
	"context"
	"database/sql"
	"time"
)

// SQLite is a Journal backed by the matches table.
type SQLite struct{ db *sql.DB }

// NewSQLite wraps an opened, migrated database.
func NewSQLite(db *sql.DB) *SQLite { return &SQLite{db: db} }

// RecordMatch inserts m; an existing id is left untouched.
func (s *SQLite) RecordMatch(ctx context.Context, m Match) error {
	if err := validate(m); err != nil {
		return err
	}
	var winner any
	if m.Winner != nil {
		winner = *m.Winner
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO matches(id, players, winner, rounds, outcome, reason, started_at, finished_at)
		VALUES(?,?,?,?,?,?,?,?)`,
		m.ID, m.Players, winner, m.Rounds, string(m.Outcome), m.Reason,
		m.StartedAt.UTC().Format(time.RFC3339Nano), m.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// RecentMatches returns up to limit matches, newest first.
func (s *SQLite) RecentMatches(ctx context.Context, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, players, winner, rounds, outcome, reason, started_at, finished_at
		FROM matches
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Match
	for rows.Next() {
		var (
			m                 Match
			winner            sql.NullInt64
			outcome           string
			started, finished string
		)
		if err := rows.Scan(&m.ID, &m.Players, &winner, &m.Rounds, &outcome, &m.Reason, &started, &finished); err != nil {
			return nil, err
		}
		if winner.Valid {
			w := int(winner.Int64)
			m.Winner = &w
		}
		m.Outcome = Outcome(outcome)
		m.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		m.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, m)
	}
	return out, rows.Err()
}
