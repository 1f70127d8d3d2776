package notify

import (
	"encoding/json"
	"testing"
	"time"
)

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestRelativeTime(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "just now"},
		{59 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{59*time.Minute + 59*time.Second, "59 minutes ago"},
		{time.Hour, "1 hour ago"},
		{3*time.Hour + 20*time.Minute, "3 hours ago"},
		{23*time.Hour + 59*time.Minute, "23 hours ago"},
		{24 * time.Hour, "1 day ago"},
		{72 * time.Hour, "3 days ago"},
		{-10 * time.Minute, "just now"},
	}
	for _, tc := range tests {
		if got := RelativeTime(now.Add(-tc.ago), now); got != tc.want {
			t.Errorf("RelativeTime(-%v) = %q, want %q", tc.ago, got, tc.want)
		}
	}
}

func TestRelativeTime_ZeroTimestamp(t *testing.T) {
	if got := RelativeTime(time.Time{}, now); got != "" {
		t.Errorf("RelativeTime(zero) = %q, want empty", got)
	}
}

func TestAggregate(t *testing.T) {
	events := []Event{
		{ID: "9", Title: "a", CreatedAt: now.Add(-2 * time.Minute)},
		{Title: "b", CreatedAt: now.Add(-2 * time.Hour), IsRead: true},
		{Title: "c", CreatedAt: now.Add(-49 * time.Hour)},
	}
	feed := Aggregate(events, now)

	if feed.Unread != 2 {
		t.Errorf("Unread = %d, want 2", feed.Unread)
	}
	wantIDs := []string{"9", "2", "3"}
	wantTimes := []string{"2 minutes ago", "2 hours ago", "2 days ago"}
	for i, n := range feed.Items {
		if n.ID != wantIDs[i] {
			t.Errorf("Items[%d].ID = %q, want %q", i, n.ID, wantIDs[i])
		}
		if n.Time != wantTimes[i] {
			t.Errorf("Items[%d].Time = %q, want %q", i, n.Time, wantTimes[i])
		}
	}
}

func TestAggregate_Empty(t *testing.T) {
	feed := Aggregate(nil, now)
	if feed.Unread != 0 || len(feed.Items) != 0 {
		t.Errorf("Aggregate(nil) = %+v", feed)
	}
	b, _ := json.Marshal(feed)
	if string(b) != `{"items":[],"unread":0}` {
		t.Errorf("json = %s", b)
	}
}

func TestEvent_UnmarshalEitherSpelling(t *testing.T) {
	var camel, snake Event
	if err := json.Unmarshal([]byte(`{"id":3,"title":"t","createdAt":"2025-03-10T11:00:00Z","isRead":true}`), &camel); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"id":"3","title":"t","created_at":"2025-03-10T11:00:00Z","is_read":true}`), &snake); err != nil {
		t.Fatal(err)
	}
	if camel != snake {
		t.Errorf("camel %+v != snake %+v", camel, snake)
	}
	if !camel.IsRead || camel.ID != "3" || camel.CreatedAt.IsZero() {
		t.Errorf("decoded = %+v", camel)
	}
}
