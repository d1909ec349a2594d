package store

import (
	"database/sql"
	"time"

	"github.com/mushfiqur/botadmin/internal/backend"
)

// SaveStats overwrites the single cached stats row.
func (db *DB) SaveStats(s backend.Stats) error {
	_, err := db.Exec(`
		INSERT INTO stats (id, total_users, active_users, total_messages, new_joins_today, fetched_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_users = excluded.total_users,
			active_users = excluded.active_users,
			total_messages = excluded.total_messages,
			new_joins_today = excluded.new_joins_today,
			fetched_at = excluded.fetched_at`,
		s.TotalUsers, s.ActiveUsers, s.TotalMessages, s.NewJoinsToday, time.Now().UnixMilli())
	return err
}

// LatestStats returns the cached stats row, if one was ever saved.
func (db *DB) LatestStats() (*backend.Stats, error) {
	var s backend.Stats
	var fetchedAt int64
	err := db.QueryRow(`
		SELECT total_users, active_users, total_messages, new_joins_today, fetched_at
		FROM stats WHERE id = 1`).
		Scan(&s.TotalUsers, &s.ActiveUsers, &s.TotalMessages, &s.NewJoinsToday, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.FetchedAt = time.UnixMilli(fetchedAt)
	return &s, nil
}
