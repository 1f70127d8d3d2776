// Package session keeps the local chat transcript consistent with the
// backend. Messages appear locally first, are persisted asynchronously, and
// are replaced in place once the backend confirms them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/resqfreeze/internal/chat"
	"github.com/kalambet/resqfreeze/internal/freshness"
)

var (
	// ErrEmptyMessage is returned by Send for blank input. Nothing changes.
	ErrEmptyMessage = errors.New("empty message")
	// ErrBusy is returned by Send while another send, a clear or the first load
	// of a session is in flight.
	ErrBusy = errors.New("session busy")
	// ErrClearNotRequested is returned by ConfirmClear without a prior RequestClear.
	ErrClearNotRequested = errors.New("clear not requested")
)

const (
	// ComposingText is the placeholder content shown while a reply is pending.
	ComposingText = "Chef is composing a reply…"
	// ApologyText replaces the reply when the assistant call fails.
	ApologyText = "Sorry, I'm having trouble answering right now. Please try again in a moment."
	// EmptyReplyText is used when the assistant answers with nothing.
	EmptyReplyText = "Sorry, I didn't understand that."

	defaultRecipeName = "Unknown recipe"
)

var (
	defaultIngredients = []string{"no ingredients available"}
	defaultSteps       = []string{"no steps available"}

	recipeIntent = regexp.MustCompile(`(?i)resep|masak|olah|tumis|cepat saji|menu|recipe|cook`)
)

// State is the reconciler lifecycle state.
type State int

const (
	Empty State = iota
	Loading
	Ready
	Sending
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Sending:
		return "sending"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for _, c := range []State{Empty, Loading, Ready, Sending} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// Store persists transcript messages.
type Store interface {
	ChatHistory(ctx context.Context) ([]chat.Message, error)
	SaveChatMessage(ctx context.Context, m chat.Message) (chat.Message, error)
	ClearChatHistory(ctx context.Context) error
}

// Assistant produces bot replies.
type Assistant interface {
	GenerateRecipe(ctx context.Context, req chat.RecipeRequest) (chat.Recipe, error)
	Chat(ctx context.Context, message, timeContext string) (string, error)
}

// ConditionsFunc reports the current verdict and the snapshot it was derived
// from. ok is false while no usable verdict exists.
type ConditionsFunc func() (v freshness.Verdict, s freshness.Snapshot, ok bool)

// View is a point-in-time copy of the session.
type View struct {
	State        State          `json:"state"`
	Messages     []chat.Message `json:"messages"`
	ClearPending bool           `json:"clear_pending"`
}

// Options configure a Reconciler. Zero values select defaults.
type Options struct {
	VegetableName string
	Now           func() time.Time
	Logger        *slog.Logger
	// OnChange is called after every transcript or state change, outside any lock.
	OnChange func(View)
}

// Reconciler owns the local transcript. It is safe for concurrent use.
type Reconciler struct {
	store      Store
	assistant  Assistant
	conditions ConditionsFunc
	vegetable  string
	now        func() time.Time
	logger     *slog.Logger
	onChange   func(View)

	mu           sync.Mutex
	state        State
	transcript   []chat.Message
	greeted      bool
	clearPending bool
	clearing     bool
	fetching     bool
	// epoch is bumped by a committed clear; results of work started under an
	// older epoch are discarded.
	epoch uint64
	// persisting counts saves in flight; a clear waits for it to reach zero
	// before deleting so no save lands after the delete.
	persisting int
	idle       *sync.Cond
}

// New creates a Reconciler in the Empty state.
func New(store Store, assistant Assistant, conditions ConditionsFunc, opts Options) *Reconciler {
	r := &Reconciler{
		store:      store,
		assistant:  assistant,
		conditions: conditions,
		vegetable:  opts.VegetableName,
		now:        opts.Now,
		logger:     opts.Logger,
		onChange:   opts.OnChange,
	}
	r.idle = sync.NewCond(&r.mu)
	if r.vegetable == "" {
		r.vegetable = "Bayam"
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.conditions == nil {
		r.conditions = func() (freshness.Verdict, freshness.Snapshot, bool) {
			return freshness.UnknownVerdict(), freshness.Snapshot{}, false
		}
	}
	return r
}

// BeginSession re-arms the one-shot greeting. Call it once per user session.
func (r *Reconciler) BeginSession() {
	r.mu.Lock()
	r.greeted = false
	r.mu.Unlock()
}

// View returns a copy of the current session.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

// Transcript returns a copy of the local transcript.
func (r *Reconciler) Transcript() []chat.Message {
	return r.View().Messages
}

// State returns the lifecycle state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reconciler) viewLocked() View {
	msgs := make([]chat.Message, len(r.transcript))
	copy(msgs, r.transcript)
	return View{State: r.state, Messages: msgs, ClearPending: r.clearPending}
}

func (r *Reconciler) changed() {
	if r.onChange == nil {
		return
	}
	r.onChange(r.View())
}

func (r *Reconciler) settleLocked() {
	if len(r.transcript) > 0 {
		r.state = Ready
	} else {
		r.state = Empty
	}
}

// Initialize loads the persisted transcript. The first load of a session
// enters Loading and, when the backend transcript is empty, produces and
// persists the two greeting messages. Later calls refresh in the background
// without blocking sends. The greeting guard is spent by the first successful
// fetch of a session, whatever it returns. Fetch failures keep the local
// transcript and are returned for logging.
func (r *Reconciler) Initialize(ctx context.Context) error {
	r.mu.Lock()
	if r.state == Sending || r.fetching || r.clearing {
		r.mu.Unlock()
		return nil
	}
	r.fetching = true
	if !r.greeted {
		r.state = Loading
	}
	epoch := r.epoch
	r.mu.Unlock()
	r.changed()

	history, err := r.store.ChatHistory(ctx)
	if err != nil {
		r.mu.Lock()
		r.finishFetchLocked()
		r.mu.Unlock()
		r.changed()
		r.logger.Warn("fetching chat history", "error", err)
		return fmt.Errorf("fetching chat history: %w", err)
	}

	r.mu.Lock()
	first := !r.greeted
	r.greeted = true
	if r.epoch != epoch {
		r.finishFetchLocked()
		r.mu.Unlock()
		r.changed()
		return nil
	}
	if len(history) > 0 {
		r.transcript = merge(history, r.transcript)
		r.finishFetchLocked()
		r.mu.Unlock()
		r.changed()
		return nil
	}
	if !first || len(r.transcript) > 0 {
		r.finishFetchLocked()
		r.mu.Unlock()
		r.changed()
		return nil
	}
	r.mu.Unlock()

	saved := make([]chat.Message, 0, 2)
	for _, m := range r.greeting() {
		confirmed, ok := r.persist(ctx, epoch, m)
		if !ok {
			break
		}
		saved = append(saved, confirmed)
	}

	r.mu.Lock()
	if r.epoch == epoch && len(r.transcript) == 0 {
		r.transcript = saved
	}
	r.finishFetchLocked()
	r.mu.Unlock()
	r.changed()
	return nil
}

// finishFetchLocked ends a load. A send that started during a background
// refresh keeps its state.
func (r *Reconciler) finishFetchLocked() {
	r.fetching = false
	if r.state != Sending {
		r.settleLocked()
	}
}

// merge rebuilds the transcript from the backend copy, which is
// authoritative for confirmed entries. Local entries the backend has not
// confirmed are kept next to their confirmed neighbours so their relative
// order survives; with no neighbour they are placed by timestamp.
func merge(remote, local []chat.Message) []chat.Message {
	localIDs := make(map[chat.ID]string, len(local))
	for _, m := range local {
		if m.Confirmed() {
			localIDs[m.ID] = m.LocalID
		}
	}
	out := make([]chat.Message, 0, len(remote)+len(local))
	for _, m := range remote {
		if m.LocalID == "" {
			m.LocalID = localIDs[m.ID]
		}
		if m.LocalID == "" {
			m.LocalID = "srv-" + string(m.ID)
		}
		out = append(out, m)
	}

	find := func(id chat.ID) int {
		return slices.IndexFunc(out, func(o chat.Message) bool { return o.ID == id })
	}
	for i, m := range local {
		if m.Confirmed() {
			continue
		}
		pos := -1
		for j := i + 1; j < len(local) && pos < 0; j++ {
			if local[j].Confirmed() {
				pos = find(local[j].ID)
			}
		}
		for j := i - 1; j >= 0 && pos < 0; j-- {
			if local[j].Confirmed() {
				if k := find(local[j].ID); k >= 0 {
					pos = k + 1
				}
			}
		}
		if pos < 0 {
			pos = len(out)
			for k, o := range out {
				if o.CreatedAt.After(m.CreatedAt) {
					pos = k
					break
				}
			}
		}
		out = slices.Insert(out, pos, m)
	}
	return out
}

// Send appends the user message and a composing placeholder, then persists
// the user message while the assistant prepares a reply. The placeholder is
// replaced by the reply (or an apology) and the reply is persisted after the
// user message. The state returns to Ready in all outcomes.
func (r *Reconciler) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	verdict, snap, haveVerdict := r.conditions()

	r.mu.Lock()
	if r.state == Sending || r.state == Loading || r.clearing {
		r.mu.Unlock()
		return ErrBusy
	}
	r.state = Sending
	epoch := r.epoch
	now := r.now()
	user := chat.Message{
		LocalID:   uuid.NewString(),
		Type:      chat.KindText,
		Sender:    chat.SenderUser,
		Content:   text,
		CreatedAt: now,
	}
	placeholder := chat.Message{
		LocalID:   uuid.NewString(),
		Type:      chat.KindText,
		Sender:    chat.SenderBot,
		Content:   ComposingText,
		CreatedAt: now,
		Composing: true,
	}
	r.transcript = append(r.transcript, user, placeholder)
	r.mu.Unlock()
	r.changed()

	defer func() {
		r.mu.Lock()
		r.settleLocked()
		r.mu.Unlock()
		r.changed()
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		if m, ok := r.persist(ctx, epoch, user); ok {
			r.replace(epoch, m)
		}
	})

	reply := r.respond(ctx, text, verdict, snap, haveVerdict)
	reply.LocalID = placeholder.LocalID
	r.replace(epoch, reply)

	wg.Wait()
	if m, ok := r.persist(ctx, epoch, reply); ok {
		r.replace(epoch, m)
	}
	return nil
}

// respond never fails; assistant errors become the apology message.
func (r *Reconciler) respond(ctx context.Context, text string, v freshness.Verdict, s freshness.Snapshot, haveVerdict bool) chat.Message {
	if haveVerdict && recipeIntent.MatchString(text) {
		rec, err := r.assistant.GenerateRecipe(ctx, chat.RecipeRequest{
			UserMessage:       text,
			VegetableName:     r.vegetable,
			FreshnessStatus:   v.Category.String(),
			Temperature:       s.Temperature,
			Humidity:          s.Humidity,
			VOC:               s.VOC,
			EstimatedDaysLeft: v.EstimatedDaysLeft,
		})
		if err != nil {
			r.logger.Warn("generating recipe", "error", err)
			return r.botText(ApologyText)
		}
		return r.recipeMessage(rec)
	}

	reply, err := r.assistant.Chat(ctx, text, TimeContext(r.now()))
	if err != nil {
		r.logger.Warn("assistant chat", "error", err)
		return r.botText(ApologyText)
	}
	if strings.TrimSpace(reply) == "" {
		return r.botText(EmptyReplyText)
	}
	return r.botText(reply)
}

func (r *Reconciler) botText(content string) chat.Message {
	return chat.Message{
		Type:      chat.KindText,
		Sender:    chat.SenderBot,
		Content:   content,
		CreatedAt: r.now(),
	}
}

func (r *Reconciler) recipeMessage(rec chat.Recipe) chat.Message {
	m := chat.Message{
		Type:        chat.KindRecipe,
		Sender:      chat.SenderBot,
		RecipeName:  rec.RecipeName,
		Ingredients: rec.Ingredients,
		Steps:       rec.Steps,
		CreatedAt:   r.now(),
	}
	if strings.TrimSpace(m.RecipeName) == "" {
		m.RecipeName = defaultRecipeName
	}
	if len(m.Ingredients) == 0 {
		m.Ingredients = append([]string(nil), defaultIngredients...)
	}
	if len(m.Steps) == 0 {
		m.Steps = append([]string(nil), defaultSteps...)
	}
	return m
}

// persist saves m and returns the confirmed copy. ok is false, and nothing
// is saved, when a clear was committed since epoch. On a save failure the
// message is returned unchanged, unconfirmed, and the error is logged.
func (r *Reconciler) persist(ctx context.Context, epoch uint64, m chat.Message) (chat.Message, bool) {
	r.mu.Lock()
	if r.epoch != epoch {
		r.mu.Unlock()
		return m, false
	}
	r.persisting++
	r.mu.Unlock()

	saved, err := r.store.SaveChatMessage(ctx, m)

	r.mu.Lock()
	r.persisting--
	if r.persisting == 0 {
		r.idle.Broadcast()
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("persisting chat message", "sender", m.Sender, "error", err)
		return m, true
	}
	m.ID = saved.ID
	if !saved.CreatedAt.IsZero() {
		m.CreatedAt = saved.CreatedAt
	}
	return m, true
}

// replace swaps the entry with m's LocalID for m, unless a clear happened
// since epoch.
func (r *Reconciler) replace(epoch uint64, m chat.Message) {
	r.mu.Lock()
	if r.epoch != epoch {
		r.mu.Unlock()
		return
	}
	found := false
	for i := range r.transcript {
		if r.transcript[i].LocalID == m.LocalID {
			r.transcript[i] = m
			found = true
			break
		}
	}
	// A background refresh may already have added the confirmed copy.
	if found && m.Confirmed() {
		r.transcript = slices.DeleteFunc(r.transcript, func(o chat.Message) bool {
			return o.ID == m.ID && o.LocalID != m.LocalID
		})
	}
	r.mu.Unlock()
	if found {
		r.changed()
	}
}

// RequestClear opens the clear confirmation prompt.
func (r *Reconciler) RequestClear() {
	r.mu.Lock()
	r.clearPending = true
	r.mu.Unlock()
	r.changed()
}

// CancelClear closes the prompt without touching the transcript.
func (r *Reconciler) CancelClear() {
	r.mu.Lock()
	r.clearPending = false
	r.mu.Unlock()
	r.changed()
}

// ConfirmClear deletes the backend transcript and empties the local one. The
// local transcript is emptied even when the delete fails; the delete error is
// returned.
func (r *Reconciler) ConfirmClear(ctx context.Context) error {
	r.mu.Lock()
	if !r.clearPending {
		r.mu.Unlock()
		return ErrClearNotRequested
	}
	r.clearPending = false
	r.clearing = true
	r.epoch++
	for r.persisting > 0 {
		r.idle.Wait()
	}
	r.mu.Unlock()

	err := r.store.ClearChatHistory(ctx)
	if err != nil {
		r.logger.Warn("clearing chat history", "error", err)
	}

	r.mu.Lock()
	r.transcript = nil
	r.clearing = false
	r.epoch++
	if r.state != Sending && r.state != Loading {
		r.state = Empty
	}
	r.mu.Unlock()
	r.changed()

	if err != nil {
		return fmt.Errorf("clearing chat history: %w", err)
	}
	return nil
}
