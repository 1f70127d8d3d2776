// Package chat holds the conversation types shared by the reconciler, the
// backend client and the reference backend.
package chat

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

type Kind string

const (
	KindText   Kind = "text"
	KindRecipe Kind = "recipe"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// ID is a server-assigned message identifier. The backend may encode it as a
// JSON number or string; both decode to the same textual form.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Message is one transcript entry. ID is empty until the backend confirms the
// message; LocalID is assigned on creation and never changes, so pending
// entries can be located and replaced without relying on their position.
type Message struct {
	ID          ID        `json:"id,omitempty"`
	LocalID     string    `json:"local_id,omitempty"`
	Type        Kind      `json:"message_type"`
	Sender      Sender    `json:"sender"`
	Content     string    `json:"content,omitempty"`
	RecipeName  string    `json:"recipe_name,omitempty"`
	Ingredients []string  `json:"ingredients,omitempty"`
	Steps       []string  `json:"steps,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Composing   bool      `json:"composing,omitempty"`
}

// Confirmed reports whether the backend has assigned an id.
func (m Message) Confirmed() bool { return m.ID != "" }

// RecipeRequest is the payload for recipe generation.
type RecipeRequest struct {
	UserMessage       string   `json:"user_message"`
	VegetableName     string   `json:"vegetable_name"`
	FreshnessStatus   string   `json:"freshness_status"`
	Temperature       *float64 `json:"temperature"`
	Humidity          *float64 `json:"humidity"`
	VOC               *float64 `json:"voc"`
	EstimatedDaysLeft *float64 `json:"estimated_days_left"`
}

// Recipe is a structured recipe reply.
type Recipe struct {
	RecipeName  string   `json:"recipe_name"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
}

// ChatRequest is the payload for a freeform assistant reply.
type ChatRequest struct {
	Message     string `json:"message"`
	TimeContext string `json:"time_context,omitempty"`
}

// ChatReply is the freeform assistant answer.
type ChatReply struct {
	Reply string `json:"reply"`
}

// Itoa formats a numeric store key as an ID.
func Itoa(n int64) ID { return ID(strconv.FormatInt(n, 10)) }
