package storage

import (
	"database/sql"
	"time"
)

// AddNotification stores n. When n.DedupeKey matches an existing row nothing
// is written and created is false.
func (s *Store) AddNotification(n Notification) (stored Notification, created bool, err error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	var key sql.NullString
	if n.DedupeKey != "" {
		key = sql.NullString{String: n.DedupeKey, Valid: true}
	}
	res, err := s.db.Exec(`
		INSERT OR IGNORE INTO notifications (kind, title, message, is_read, dedupe_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.Kind, n.Title, n.Message, n.IsRead, key, formatTime(n.CreatedAt),
	)
	if err != nil {
		return Notification{}, false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return Notification{}, false, err
	}
	if rows == 0 {
		return Notification{}, false, nil
	}
	if n.ID, err = res.LastInsertId(); err != nil {
		return Notification{}, false, err
	}
	return n, true, nil
}

// ListNotifications returns up to limit notifications, newest first.
func (s *Store) ListNotifications(limit int) ([]Notification, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, title, message, is_read, COALESCE(dedupe_key, ''), created_at
		FROM notifications ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var createdAt string
		if err := rows.Scan(&n.ID, &n.Kind, &n.Title, &n.Message, &n.IsRead, &n.DedupeKey, &createdAt); err != nil {
			return nil, err
		}
		if n.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags a notification as read.
func (s *Store) MarkNotificationRead(id int64) error {
	res, err := s.db.Exec(`UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
