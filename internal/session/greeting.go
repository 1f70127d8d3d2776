package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/resqfreeze/internal/chat"
	"github.com/kalambet/resqfreeze/internal/freshness"
)

// PartOfDay buckets a clock hour: morning 04–10, afternoon 11–14,
// evening 15–18, night otherwise.
func PartOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 4 && h < 11:
		return "morning"
	case h >= 11 && h < 15:
		return "afternoon"
	case h >= 15 && h < 19:
		return "evening"
	default:
		return "night"
	}
}

// TimeContext is the time-of-day hint sent with freeform chat requests.
func TimeContext(t time.Time) string {
	return fmt.Sprintf("%s, %s", PartOfDay(t), t.Format("15:04"))
}

// greeting builds the two opening bot messages: a salutation for the current
// part of day, then the current recommendation.
func (r *Reconciler) greeting() []chat.Message {
	now := r.now()
	v, _, ok := r.conditions()
	if !ok {
		v = freshness.UnknownVerdict()
	}
	hello := fmt.Sprintf("Good %s! 👋 I'm Chef Sayuran, your cooking assistant for %s.", PartOfDay(now), r.vegetable)
	summary := fmt.Sprintf("🔍 %s • Expected to wilt in: %s.", v.Recommendation, v.DaysDisplay)

	return []chat.Message{
		{LocalID: uuid.NewString(), Type: chat.KindText, Sender: chat.SenderBot, Content: hello, CreatedAt: now},
		{LocalID: uuid.NewString(), Type: chat.KindText, Sender: chat.SenderBot, Content: summary, CreatedAt: now.Add(time.Millisecond)},
	}
}
