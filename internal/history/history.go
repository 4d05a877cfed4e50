// Package history archives finished tournaments in a storm (bbolt) database.
package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/asdine/storm"
	"github.com/asdine/storm/q"
	"github.com/rotisserie/eris"

	"battlearena/internal/ports"
)

type tournamentRow struct {
	ID          string `storm:"id"`
	Arena       string `storm:"index"`
	Winners     []string
	Rounds      int
	Contestants []ports.ContestantRecord
	StartedAt   time.Time
	FinishedAt  time.Time
	// Finished orders rows; storm sorts integers natively.
	Finished int64 `storm:"index"`
	Ended    bool
}

// Store implements ports.ResultArchive.
type Store struct {
	db *storm.DB
}

// Open opens or creates the archive at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "unable to create history directory %s", dir)
		}
	}
	db, err := storm.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "unable to open history %s", path)
	}
	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(_ context.Context, r ports.TournamentRecord) error {
	row := tournamentRow{
		ID:          r.ID,
		Arena:       r.Arena,
		Winners:     r.Winners,
		Rounds:      r.Rounds,
		Contestants: r.Contestants,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Finished:    r.FinishedAt.UnixNano(),
		Ended:       r.Ended,
	}
	if err := s.db.Save(&row); err != nil {
		return eris.Wrapf(err, "unable to save tournament %s", r.ID)
	}
	return nil
}

// Recent returns the latest records, newest first. An empty arena matches all arenas.
func (s *Store) Recent(_ context.Context, arena string, limit int) ([]ports.TournamentRecord, error) {
	var matchers []q.Matcher
	if arena != "" {
		matchers = append(matchers, q.Eq("Arena", arena))
	}
	query := s.db.Select(matchers...).OrderBy("Finished").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []tournamentRow
	if err := query.Find(&rows); err != nil {
		if errors.Is(err, storm.ErrNotFound) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "unable to list tournaments")
	}
	out := make([]ports.TournamentRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, ports.TournamentRecord{
			ID:          row.ID,
			Arena:       row.Arena,
			Winners:     row.Winners,
			Rounds:      row.Rounds,
			Contestants: row.Contestants,
			StartedAt:   row.StartedAt,
			FinishedAt:  row.FinishedAt,
			Ended:       row.Ended,
		})
	}
	return out, nil
}
