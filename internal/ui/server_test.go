package ui

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

	"github.com/kalambet/resqfreeze/internal/backend"
	"github.com/kalambet/resqfreeze/internal/chat"
	"github.com/kalambet/resqfreeze/internal/freshness"
	"github.com/kalambet/resqfreeze/internal/monitor"
	"github.com/kalambet/resqfreeze/internal/notify"
	"github.com/kalambet/resqfreeze/internal/session"
)

// --- fakes ---

type fakeSession struct {
	mu           sync.Mutex
	messages     []chat.Message
	sendErr      error
	clearErr     error
	clearPending bool
	sent         []string
}

func (f *fakeSession) View() session.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := session.Empty
	if len(f.messages) > 0 {
		state = session.Ready
	}
	return session.View{State: state, Messages: append([]chat.Message(nil), f.messages...), ClearPending: f.clearPending}
}

func (f *fakeSession) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	f.messages = append(f.messages,
		chat.Message{ID: "1", Type: chat.KindText, Sender: chat.SenderUser, Content: text},
		chat.Message{ID: "2", Type: chat.KindText, Sender: chat.SenderBot, Content: "reply to " + text},
	)
	return nil
}

func (f *fakeSession) RequestClear() {
	f.mu.Lock()
	f.clearPending = true
	f.mu.Unlock()
}

func (f *fakeSession) CancelClear() {
	f.mu.Lock()
	f.clearPending = false
	f.mu.Unlock()
}

func (f *fakeSession) ConfirmClear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.clearPending {
		return session.ErrClearNotRequested
	}
	f.clearPending = false
	f.messages = nil
	return f.clearErr
}

type fakeDashboard struct {
	mu            sync.Mutex
	status        monitor.Status
	feed          notify.Feed
	sensorRefresh int
	noticeRefresh int
}

func (f *fakeDashboard) Status() monitor.Status { return f.status }
func (f *fakeDashboard) Feed() notify.Feed      { return f.feed }

func (f *fakeDashboard) RefreshSensors(context.Context) error {
	f.mu.Lock()
	f.sensorRefresh++
	f.mu.Unlock()
	return nil
}

func (f *fakeDashboard) RefreshNotifications(context.Context) error {
	f.mu.Lock()
	f.noticeRefresh++
	f.mu.Unlock()
	return nil
}

type fakeBackend struct {
	points    []backend.SensorPoint
	lastLimit int
	markErr   error
	marked    []string
}

func (f *fakeBackend) SensorHistory(_ context.Context, limit int) ([]backend.SensorPoint, error) {
	f.lastLimit = limit
	return f.points, nil
}

func (f *fakeBackend) MarkNotificationRead(_ context.Context, id string) error {
	f.marked = append(f.marked, id)
	return f.markErr
}

func newTestHandler() (http.Handler, *fakeSession, *fakeDashboard, *fakeBackend) {
	sess := &fakeSession{}
	dash := &fakeDashboard{
		status: monitor.Status{Verdict: freshness.UnknownVerdict(), Headline: "awaiting sensor data"},
		feed:   notify.Feed{Items: []notify.Notification{{ID: "7", Title: "Segar -> Mulai Layu", Time: "just now"}}, Unread: 1},
	}
	be := &fakeBackend{}
	return NewHandler(Deps{Session: sess, Monitor: dash, Backend: be}), sess, dash, be
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type viewJSON struct {
	State        string         `json:"state"`
	Messages     []chat.Message `json:"messages"`
	ClearPending bool           `json:"clear_pending"`
}

// --- tests ---

func TestHealth(t *testing.T) {
	h, _, _, _ := newTestHandler()
	if rr := do(h, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestState(t *testing.T) {
	h, _, _, _ := newTestHandler()
	rr := do(h, http.MethodGet, "/state", "")
	var body struct {
		Status struct {
			Headline string `json:"headline"`
			Verdict  struct {
				Category string `json:"category"`
			} `json:"verdict"`
		} `json:"status"`
		Session viewJSON `json:"session"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status.Verdict.Category != "Unknown" || body.Status.Headline != "awaiting sensor data" {
		t.Errorf("status = %+v", body.Status)
	}
	if body.Session.State != "empty" {
		t.Errorf("session state = %q, want empty", body.Session.State)
	}
}

func TestChat(t *testing.T) {
	h, sess, _, _ := newTestHandler()

	rr := do(h, http.MethodPost, "/chat", `{"message":"resep cepat?"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var view viewJSON
	json.NewDecoder(rr.Body).Decode(&view)
	if len(view.Messages) != 2 || view.Messages[1].Content != "reply to resep cepat?" {
		t.Errorf("view = %+v", view)
	}
	if len(sess.sent) != 1 {
		t.Errorf("sent = %v", sess.sent)
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrEmptyMessage, http.StatusBadRequest},
		{session.ErrBusy, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		h, sess, _, _ := newTestHandler()
		sess.sendErr = tc.err
		if rr := do(h, http.MethodPost, "/chat", `{"message":"x"}`); rr.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, rr.Code, tc.want)
		}
	}

	h, _, _, _ := newTestHandler()
	if rr := do(h, http.MethodPost, "/chat", `{`); rr.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d", rr.Code)
	}
}

func TestClearFlow(t *testing.T) {
	h, sess, _, _ := newTestHandler()
	sess.Send(context.Background(), "hello")

	if rr := do(h, http.MethodPost, "/chat/clear/confirm", ""); rr.Code != http.StatusConflict {
		t.Fatalf("confirm without request: status = %d, want 409", rr.Code)
	}

	rr := do(h, http.MethodPost, "/chat/clear", "")
	var view viewJSON
	json.NewDecoder(rr.Body).Decode(&view)
	if !view.ClearPending {
		t.Error("clear prompt not open")
	}

	rr = do(h, http.MethodPost, "/chat/clear/cancel", "")
	view = viewJSON{}
	json.NewDecoder(rr.Body).Decode(&view)
	if view.ClearPending || len(view.Messages) != 2 {
		t.Errorf("after cancel = %+v", view)
	}

	do(h, http.MethodPost, "/chat/clear", "")
	rr = do(h, http.MethodPost, "/chat/clear/confirm", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm status = %d", rr.Code)
	}
	view = viewJSON{}
	json.NewDecoder(rr.Body).Decode(&view)
	if len(view.Messages) != 0 || view.State != "empty" {
		t.Errorf("after confirm = %+v", view)
	}
}

func TestClearConfirm_BackendFailure(t *testing.T) {
	h, sess, _, _ := newTestHandler()
	sess.clearErr = errors.New("backend down")
	do(h, http.MethodPost, "/chat/clear", "")
	if rr := do(h, http.MethodPost, "/chat/clear/confirm", ""); rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
}

func TestNotifications(t *testing.T) {
	h, _, dash, be := newTestHandler()

	rr := do(h, http.MethodGet, "/notifications", "")
	var feed notify.Feed
	json.NewDecoder(rr.Body).Decode(&feed)
	if feed.Unread != 1 || len(feed.Items) != 1 {
		t.Errorf("feed = %+v", feed)
	}

	if rr := do(h, http.MethodPost, "/notifications/7/read", ""); rr.Code != http.StatusOK {
		t.Fatalf("mark read status = %d", rr.Code)
	}
	if len(be.marked) != 1 || be.marked[0] != "7" {
		t.Errorf("marked = %v", be.marked)
	}
	if dash.noticeRefresh != 1 {
		t.Errorf("notifications refreshed %d times, want 1", dash.noticeRefresh)
	}

	be.markErr = &backend.StatusError{Op: "mark notification read", Status: http.StatusNotFound}
	if rr := do(h, http.MethodPost, "/notifications/99/read", ""); rr.Code != http.StatusNotFound {
		t.Errorf("missing id: status = %d, want 404", rr.Code)
	}
}

func TestSensorHistory(t *testing.T) {
	h, _, _, be := newTestHandler()
	v := 12.0
	be.points = []backend.SensorPoint{{Time: "08:00", Suhu: &v, Kelembapan: &v, VOC: &v, Status: "segar"}}

	rr := do(h, http.MethodGet, "/sensors/history", "")
	var points []backend.SensorPoint
	json.NewDecoder(rr.Body).Decode(&points)
	if len(points) != 1 || be.lastLimit != 12 {
		t.Errorf("points = %+v, limit = %d", points, be.lastLimit)
	}

	do(h, http.MethodGet, "/sensors/history?limit=48", "")
	if be.lastLimit != 48 {
		t.Errorf("limit = %d, want 48", be.lastLimit)
	}
	if rr := do(h, http.MethodGet, "/sensors/history?limit=-1", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("negative limit: status = %d", rr.Code)
	}
}

func TestRefresh(t *testing.T) {
	h, _, dash, _ := newTestHandler()
	if rr := do(h, http.MethodPost, "/refresh", ""); rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if dash.sensorRefresh != 1 || dash.noticeRefresh != 1 {
		t.Errorf("refreshes = %d/%d", dash.sensorRefresh, dash.noticeRefresh)
	}
}

func TestNoBackend(t *testing.T) {
	h := NewHandler(Deps{Session: &fakeSession{}, Monitor: &fakeDashboard{}})
	if rr := do(h, http.MethodGet, "/sensors/history", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
	if rr := do(h, http.MethodGet, "/ws", ""); rr.Code != http.StatusNotFound {
		t.Errorf("/ws without hub: status = %d, want 404", rr.Code)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
