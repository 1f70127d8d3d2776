package storage

import (
	"database/sql"
	"errors"
	"slices"
	"time"
)

// SaveReading stores r and returns it with its id. A zero CreatedAt is set to now.
func (s *Store) SaveReading(r Reading) (Reading, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO sensor_readings (temperature, humidity, voc, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.Temperature, r.Humidity, r.VOC, r.Status, formatTime(r.CreatedAt),
	)
	if err != nil {
		return Reading{}, err
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return Reading{}, err
	}
	return r, nil
}

// LatestReading returns the most recent reading, or ErrNotFound.
func (s *Store) LatestReading() (Reading, error) {
	row := s.db.QueryRow(`
		SELECT id, temperature, humidity, voc, status, created_at
		FROM sensor_readings ORDER BY id DESC LIMIT 1`)
	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Reading{}, ErrNotFound
	}
	return r, err
}

// RecentReadings returns up to limit of the newest readings, oldest first.
func (s *Store) RecentReadings(limit int) ([]Reading, error) {
	rows, err := s.db.Query(`
		SELECT id, temperature, humidity, voc, status, created_at
		FROM sensor_readings ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// PruneReadings deletes all but the newest keep readings.
func (s *Store) PruneReadings(keep int) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM sensor_readings
		WHERE id NOT IN (SELECT id FROM sensor_readings ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReading(sc scanner) (Reading, error) {
	var r Reading
	var createdAt string
	if err := sc.Scan(&r.ID, &r.Temperature, &r.Humidity, &r.VOC, &r.Status, &createdAt); err != nil {
		return Reading{}, err
	}
	t, err := parseTime("created_at", createdAt)
	if err != nil {
		return Reading{}, err
	}
	r.CreatedAt = t
	return r, nil
}
