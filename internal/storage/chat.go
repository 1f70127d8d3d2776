package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// SaveChatMessage appends m to the history. The stored timestamp is always
// the server clock.
func (s *Store) SaveChatMessage(m ChatMessage) (ChatMessage, error) {
	if m.Type == "" {
		m.Type = "text"
	}
	ingredients, err := json.Marshal(nonNil(m.Ingredients))
	if err != nil {
		return ChatMessage{}, fmt.Errorf("encoding ingredients: %w", err)
	}
	steps, err := json.Marshal(nonNil(m.Steps))
	if err != nil {
		return ChatMessage{}, fmt.Errorf("encoding steps: %w", err)
	}
	m.CreatedAt = time.Now().UTC().Truncate(time.Second)

	res, err := s.db.Exec(`
		INSERT INTO chat_messages (message_type, sender, content, recipe_name, ingredients, steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.Type, m.Sender, m.Content, m.RecipeName, string(ingredients), string(steps), formatTime(m.CreatedAt),
	)
	if err != nil {
		return ChatMessage{}, err
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return ChatMessage{}, err
	}
	return m, nil
}

// ListChatMessages returns the whole history in insertion order.
func (s *Store) ListChatMessages() ([]ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, message_type, sender, content, recipe_name, ingredients, steps, created_at
		FROM chat_messages ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var ingredients, steps, createdAt string
		if err := rows.Scan(&m.ID, &m.Type, &m.Sender, &m.Content, &m.RecipeName, &ingredients, &steps, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ingredients), &m.Ingredients); err != nil {
			return nil, fmt.Errorf("decoding ingredients of message %d: %w", m.ID, err)
		}
		if err := json.Unmarshal([]byte(steps), &m.Steps); err != nil {
			return nil, fmt.Errorf("decoding steps of message %d: %w", m.ID, err)
		}
		if m.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ClearChatMessages deletes the whole history and returns how many rows went.
func (s *Store) ClearChatMessages() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM chat_messages`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
