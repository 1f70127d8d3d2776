package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/resqfreeze/internal/profile"
	"github.com/kalambet/resqfreeze/internal/storage"
)

type mockMessenger struct {
	mu    sync.Mutex
	sent  []string
	phone string
	err   error
}

func (m *mockMessenger) Send(ctx context.Context, phone, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.phone = phone
	m.sent = append(m.sent, text)
	return nil
}

type staticProfile profile.Profile

func (p staticProfile) GetProfile() (profile.Profile, error) { return profile.Profile(p), nil }

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var owner = staticProfile{VegetableName: "Bayam", WhatsAppNumber: "62812"}

var at = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestWorker_ProcessesTransition(t *testing.T) {
	store := openTestStore(t)
	if _, err := EnqueueTransition(store, Transition{From: "segar", To: "mulai_layu", VOC: 80, At: at}); err != nil {
		t.Fatalf("EnqueueTransition: %v", err)
	}

	msgr := &mockMessenger{}
	w := NewWorker(store, msgr, owner, 0)

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}

	notes, err := store.ListNotifications(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notes))
	}
	if notes[0].Title != "Segar -> Mulai Layu" {
		t.Errorf("Title = %q", notes[0].Title)
	}
	if !strings.Contains(notes[0].Message, "Bayam") || !strings.Contains(notes[0].Message, "starting to wilt") {
		t.Errorf("Message = %q", notes[0].Message)
	}
	if len(msgr.sent) != 1 || msgr.phone != "62812" {
		t.Errorf("sent = %v to %q", msgr.sent, msgr.phone)
	}

	counts, _ := store.JobCounts()
	if counts["completed"] != 1 {
		t.Errorf("job counts = %v", counts)
	}
}

func TestWorker_SameTransitionOncePerDay(t *testing.T) {
	store := openTestStore(t)
	msgr := &mockMessenger{}
	w := NewWorker(store, msgr, owner, 0)
	ctx := context.Background()

	for _, ts := range []time.Time{at, at.Add(2 * time.Hour), at.Add(24 * time.Hour)} {
		if _, err := EnqueueTransition(store, Transition{From: "segar", To: "mulai_layu", At: ts}); err != nil {
			t.Fatal(err)
		}
		if _, err := w.RunOnce(ctx); err != nil {
			t.Fatal(err)
		}
	}

	notes, _ := store.ListNotifications(10)
	if len(notes) != 2 {
		t.Errorf("notifications = %d, want 2 (one per day)", len(notes))
	}
	if len(msgr.sent) != 2 {
		t.Errorf("messages = %d, want 2", len(msgr.sent))
	}
}

func TestWorker_MessengerFailureRetries(t *testing.T) {
	store := openTestStore(t)
	if _, err := EnqueueTransition(store, Transition{From: "mulai_layu", To: "busuk", At: at}); err != nil {
		t.Fatal(err)
	}

	w := NewWorker(store, &mockMessenger{err: errors.New("gateway down")}, owner, 0)
	didWork, err := w.RunOnce(context.Background())
	if err != nil || !didWork {
		t.Fatalf("RunOnce = (%v, %v)", didWork, err)
	}

	counts, _ := store.JobCounts()
	if counts["pending"] != 1 {
		t.Errorf("job counts = %v, want one pending retry", counts)
	}
	notes, _ := store.ListNotifications(10)
	if len(notes) != 1 {
		t.Errorf("notifications = %d, want 1", len(notes))
	}
}

func TestWorker_NoPhoneOnlyRecords(t *testing.T) {
	store := openTestStore(t)
	EnqueueTransition(store, Transition{From: "segar", To: "busuk", At: at})

	msgr := &mockMessenger{}
	w := NewWorker(store, msgr, staticProfile{VegetableName: "Bayam"}, 0)
	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(msgr.sent) != 0 {
		t.Errorf("sent without a phone number: %v", msgr.sent)
	}
	counts, _ := store.JobCounts()
	if counts["completed"] != 1 {
		t.Errorf("job counts = %v", counts)
	}
}

func TestWorker_RunOnceEmpty(t *testing.T) {
	w := NewWorker(openTestStore(t), nil, owner, 0)
	didWork, err := w.RunOnce(context.Background())
	if err != nil || didWork {
		t.Errorf("RunOnce on empty queue = (%v, %v), want (false, nil)", didWork, err)
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	w := NewWorker(openTestStore(t), nil, owner, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWebhookMessenger(t *testing.T) {
	var got map[string]string
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	m := NewWebhookMessenger(srv.URL, "k")
	if err := m.Send(context.Background(), "0812345", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["nomor"] != "62812345" || got["pesan"] != "hello" {
		t.Errorf("body = %v", got)
	}
	if gotKey != "k" {
		t.Errorf("x-api-key = %q", gotKey)
	}
}

func TestWebhookMessenger_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookMessenger(srv.URL, "").Send(context.Background(), "62", "x"); err == nil {
		t.Error("expected error on 502")
	}
}
