// Package notify converts raw backend notification events into display items
// with relative-time labels and an unread count.
package notify

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/kalambet/resqfreeze/internal/chat"
)

// Event is a notification as delivered by the backend. Both camelCase and
// snake_case field spellings are accepted on decode.
type Event struct {
	ID        chat.ID   `json:"id,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	IsRead    bool      `json:"isRead"`
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         chat.ID    `json:"id"`
		Title      string     `json:"title"`
		Message    string     `json:"message"`
		CreatedAt  *time.Time `json:"createdAt"`
		CreatedAt2 *time.Time `json:"created_at"`
		IsRead     *bool      `json:"isRead"`
		IsRead2    *bool      `json:"is_read"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event{ID: raw.ID, Title: raw.Title, Message: raw.Message}
	switch {
	case raw.CreatedAt != nil:
		e.CreatedAt = *raw.CreatedAt
	case raw.CreatedAt2 != nil:
		e.CreatedAt = *raw.CreatedAt2
	}
	switch {
	case raw.IsRead != nil:
		e.IsRead = *raw.IsRead
	case raw.IsRead2 != nil:
		e.IsRead = *raw.IsRead2
	}
	return nil
}

// Notification is a display-ready event.
type Notification struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Time    string `json:"time"`
	IsRead  bool   `json:"isRead"`
}

// Feed is the aggregated notification list.
type Feed struct {
	Items  []Notification `json:"items"`
	Unread int            `json:"unread"`
}

// Aggregate builds a Feed from raw events, preserving their order. Events
// without an id get their 1-based position instead. Labels are relative to now,
// so callers recompute the feed whenever they render it.
func Aggregate(events []Event, now time.Time) Feed {
	feed := Feed{Items: make([]Notification, 0, len(events))}
	for i, e := range events {
		id := string(e.ID)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		feed.Items = append(feed.Items, Notification{
			ID:      id,
			Title:   e.Title,
			Message: e.Message,
			Time:    RelativeTime(e.CreatedAt, now),
			IsRead:  e.IsRead,
		})
		if !e.IsRead {
			feed.Unread++
		}
	}
	return feed
}

// RelativeTime renders the age of createdAt as "just now", "N minutes ago",
// "N hours ago" or "N days ago". Timestamps in the future read as "just now".
// A zero createdAt renders as an empty label.
func RelativeTime(createdAt, now time.Time) string {
	if createdAt.IsZero() {
		return ""
	}
	minutes := int(now.Sub(createdAt) / time.Minute)
	switch {
	case minutes < 1:
		return "just now"
	case minutes < 60:
		return plural(minutes, "minute")
	case minutes < 24*60:
		return plural(minutes/60, "hour")
	default:
		return plural(minutes/(24*60), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return strconv.Itoa(n) + " " + unit + "s ago"
}
