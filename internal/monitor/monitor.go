// Package monitor runs the periodic loops behind the dashboard: sensor
// polling with classification, the wall clock, and the notification feed.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/resqfreeze/internal/freshness"
	"github.com/kalambet/resqfreeze/internal/notify"
)

// SensorSource provides the latest container reading.
type SensorSource interface {
	LatestSensor(ctx context.Context) (freshness.Snapshot, error)
}

// NotificationSource provides raw notification events.
type NotificationSource interface {
	Notifications(ctx context.Context) ([]notify.Event, error)
}

// Syncer is the transcript reconciler refreshed after each sensor poll.
type Syncer interface {
	BeginSession()
	Initialize(ctx context.Context) error
}

// Publisher receives state change events.
type Publisher interface {
	Publish(Event)
}

// Event is a typed state change pushed to subscribers.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const (
	EventVerdict       = "verdict"
	EventClock         = "clock"
	EventTranscript    = "transcript"
	EventNotifications = "notifications"
)

// Config sets loop periods and the label policy.
type Config struct {
	SensorInterval       time.Duration
	ClockInterval        time.Duration
	NotificationInterval time.Duration
	// PreferServerLabel lets a recognised backend status label override the
	// locally computed category.
	PreferServerLabel bool
}

// DefaultConfig returns the standard periods: sensors every 5s, clock every
// second, notifications every minute.
func DefaultConfig() Config {
	return Config{
		SensorInterval:       5 * time.Second,
		ClockInterval:        time.Second,
		NotificationInterval: time.Minute,
		PreferServerLabel:    true,
	}
}

// Status is a point-in-time copy of the monitor state.
type Status struct {
	Verdict       freshness.Verdict  `json:"verdict"`
	Snapshot      freshness.Snapshot `json:"snapshot"`
	Headline      string             `json:"headline"`
	QuickReplies  []string           `json:"quick_replies"`
	Notifications notify.Feed        `json:"notifications"`
	Clock         time.Time          `json:"clock"`
	LastPoll      time.Time          `json:"last_poll"`
}

// Monitor owns the derived dashboard state. It is safe for concurrent use.
type Monitor struct {
	sensors   SensorSource
	notes     NotificationSource
	session   Syncer
	publisher Publisher
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.RWMutex
	issued   uint64
	applied  uint64
	verdict  freshness.Verdict
	snapshot freshness.Snapshot
	events   []notify.Event
	clock    time.Time
	lastPoll time.Time
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) Option {
	return func(m *Monitor) { m.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// New creates a Monitor. session may be nil.
func New(sensors SensorSource, notes NotificationSource, session Syncer, cfg Config, opts ...Option) *Monitor {
	def := DefaultConfig()
	if cfg.SensorInterval <= 0 {
		cfg.SensorInterval = def.SensorInterval
	}
	if cfg.ClockInterval <= 0 {
		cfg.ClockInterval = def.ClockInterval
	}
	if cfg.NotificationInterval <= 0 {
		cfg.NotificationInterval = def.NotificationInterval
	}
	m := &Monitor{
		sensors: sensors,
		notes:   notes,
		session: session,
		cfg:     cfg,
		now:     time.Now,
		logger:  slog.Default(),
		verdict: freshness.UnknownVerdict(),
	}
	for _, o := range opts {
		o(m)
	}
	m.clock = m.now()
	return m
}

// SetPublisher replaces the event sink.
func (m *Monitor) SetPublisher(p Publisher) {
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

// Run starts a session and drives all loops until ctx is cancelled. Each loop
// fires once immediately and then on its period. Cancellation stops every
// loop and their tickers before Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	if m.session != nil {
		m.session.BeginSession()
	}
	m.logger.Info("monitor started",
		"sensor_interval", m.cfg.SensorInterval,
		"notification_interval", m.cfg.NotificationInterval,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop(gctx, m.cfg.SensorInterval, func(ctx context.Context) {
			if err := m.RefreshSensors(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("sensor poll failed", "error", err)
			}
			if m.session != nil {
				if err := m.session.Initialize(ctx); err != nil && ctx.Err() == nil {
					m.logger.Debug("transcript refresh failed", "error", err)
				}
			}
		})
	})
	g.Go(func() error {
		return loop(gctx, m.cfg.ClockInterval, func(context.Context) { m.Tick() })
	})
	g.Go(func() error {
		return loop(gctx, m.cfg.NotificationInterval, func(ctx context.Context) {
			if err := m.RefreshNotifications(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("notification poll failed", "error", err)
			}
		})
	})

	err := g.Wait()
	m.logger.Info("monitor stopped")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func loop(ctx context.Context, every time.Duration, fn func(context.Context)) error {
	fn(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// RefreshSensors fetches the latest reading and reclassifies. A failed fetch
// resets the verdict to Unknown. Results older than one already applied are
// dropped, so overlapping refreshes never regress the state.
func (m *Monitor) RefreshSensors(ctx context.Context) error {
	m.mu.Lock()
	m.issued++
	seq := m.issued
	m.mu.Unlock()

	snap, err := m.sensors.LatestSensor(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var verdict freshness.Verdict
	if err != nil {
		snap = freshness.Snapshot{}
		verdict = freshness.UnknownVerdict()
	} else {
		verdict = freshness.Evaluate(snap, m.cfg.PreferServerLabel)
	}

	m.mu.Lock()
	if seq <= m.applied {
		m.mu.Unlock()
		return err
	}
	m.applied = seq
	prev := m.verdict.Category
	m.verdict = verdict
	m.snapshot = snap
	m.lastPoll = m.now()
	m.mu.Unlock()

	if prev != verdict.Category {
		m.logger.Info("freshness changed", "from", prev, "to", verdict.Category, "rule", freshness.MatchedRule(snap.VOC, snap.Temperature, snap.Humidity))
	}
	m.publish(Event{Type: EventVerdict, Payload: m.Status()})
	return err
}

// RefreshNotifications fetches the raw event list. On failure the previous
// list is kept.
func (m *Monitor) RefreshNotifications(ctx context.Context) error {
	events, err := m.notes.Notifications(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.events = events
	m.mu.Unlock()
	m.publish(Event{Type: EventNotifications, Payload: m.Feed()})
	return nil
}

// Tick advances the displayed clock and republishes it.
func (m *Monitor) Tick() {
	now := m.now()
	m.mu.Lock()
	m.clock = now
	m.mu.Unlock()
	m.publish(Event{Type: EventClock, Payload: now})
}

// Conditions reports the current verdict for the chat. ok is false while the
// verdict is Unknown.
func (m *Monitor) Conditions() (freshness.Verdict, freshness.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.verdict, m.snapshot, m.verdict.Category != freshness.Unknown
}

// Feed aggregates the notification list with labels relative to now.
func (m *Monitor) Feed() notify.Feed {
	m.mu.RLock()
	events := m.events
	m.mu.RUnlock()
	return notify.Aggregate(events, m.now())
}

// Status returns a copy of the current state.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	st := Status{
		Verdict:      m.verdict,
		Snapshot:     m.snapshot,
		Headline:     m.verdict.Headline(),
		QuickReplies: freshness.QuickReplies(m.verdict.Category),
		Clock:        m.clock,
		LastPoll:     m.lastPoll,
	}
	m.mu.RUnlock()
	st.Notifications = m.Feed()
	return st
}

func (m *Monitor) publish(e Event) {
	m.mu.RLock()
	p := m.publisher
	m.mu.RUnlock()
	if p != nil {
		p.Publish(e)
	}
}
