package store

import (
	"fmt"
	"time"

	"github.com/mushfiqur/botadmin/internal/chat"
)

// UpsertUsers writes a batch of roster rows in one transaction.
func (db *DB) UpsertUsers(users []chat.User) error {
	if len(users) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, u := range users {
		if _, err := tx.Exec(`
			INSERT INTO users (user_id, full_name, username, photo_url, is_online, join_date, label, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				full_name = excluded.full_name,
				username = excluded.username,
				photo_url = excluded.photo_url,
				is_online = excluded.is_online,
				join_date = excluded.join_date,
				label = excluded.label,
				updated_at = excluded.updated_at`,
			u.ID, u.FullName, u.Username, u.PhotoURL, u.IsOnline, u.JoinDate, u.Label, now); err != nil {
			return fmt.Errorf("upsert user %s: %w", u.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit users: %w", err)
	}
	return nil
}

// ListUsers returns cached roster rows, newest joins first.
func (db *DB) ListUsers(limit, offset int) ([]chat.User, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT user_id, full_name, username, photo_url, is_online, join_date, label
		FROM users
		ORDER BY join_date DESC, user_id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []chat.User
	for rows.Next() {
		var u chat.User
		if err := rows.Scan(&u.ID, &u.FullName, &u.Username, &u.PhotoURL, &u.IsOnline, &u.JoinDate, &u.Label); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetLabel updates the cached label for one user.
func (db *DB) SetLabel(userID, label string) error {
	_, err := db.Exec(`UPDATE users SET label = ?, updated_at = ? WHERE user_id = ?`,
		label, time.Now().UnixMilli(), userID)
	return err
}
