package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultViolationLimit = 3
	DefaultCoalesceWindow = 100 * time.Millisecond
	DefaultUnloadMessage  = "Are you sure you want to leave? Your exam may be auto-submitted."
)

// SignalKind is the integrity signal that claimed a violation.
type SignalKind string

const (
	SignalHidden SignalKind = "hidden"
	SignalBlur   SignalKind = "blur"
)

// Violation is a counted integrity signal.
type Violation struct {
	Kind  SignalKind
	Count int
	Limit int
	At    time.Time
}

// Breached reports whether this violation reached the limit.
func (v Violation) Breached() bool {
	return v.Count >= v.Limit
}

type MonitorConfig struct {
	Limit int
	// Window is how long a claimed hidden/blur signal suppresses the next one.
	Window        time.Duration
	UnloadMessage string
	Clock         Clock
	Log           zerolog.Logger

	OnViolation  func(Violation)
	OnBreach     func(Violation)
	OnFullscreen func(active bool)
}

// Monitor counts attempts to leave the exam surface and reports a breach at the limit.
// Hidden and blur share one counter; a signal arriving inside the window of a
// previously counted one belongs to the same user action and is dropped.
type Monitor struct {
	cfg MonitorConfig

	mu         sync.Mutex
	subscribed bool
	active     bool
	stopped    bool
	suspended  bool
	count      int
	claimed    bool
	claimedAt  time.Time
	fullscreen bool
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultViolationLimit
	}
	if cfg.Window < 0 {
		cfg.Window = 0
	}
	if cfg.UnloadMessage == "" {
		cfg.UnloadMessage = DefaultUnloadMessage
	}
	return &Monitor{cfg: cfg}
}

// Start subscribes to src (once) and begins counting. A stopped monitor stays stopped.
func (m *Monitor) Start(src SignalSource) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.active = true
	m.suspended = false
	subscribe := !m.subscribed && src != nil
	m.subscribed = true
	m.mu.Unlock()

	if subscribe {
		src.OnHidden(func() { m.signal(SignalHidden) })
		src.OnBlur(func() { m.signal(SignalBlur) })
		src.OnFullscreenChange(m.fullscreenChanged)
		src.OnUnloadAttempt(m.unloadAttempt)
	}
}

// Stop ends observation for good.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.active = false
	m.stopped = true
	m.mu.Unlock()
}

// Suspend ignores signals while a submission is being saved.
func (m *Monitor) Suspend() {
	m.mu.Lock()
	m.suspended = true
	m.mu.Unlock()
}

// Resume counts signals again after a failed save.
func (m *Monitor) Resume() {
	m.mu.Lock()
	m.suspended = false
	m.mu.Unlock()
}

func (m *Monitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

func (m *Monitor) Limit() int {
	return m.cfg.Limit
}

func (m *Monitor) Fullscreen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fullscreen
}

func (m *Monitor) signal(kind SignalKind) {
	m.mu.Lock()
	if !m.active || m.suspended {
		m.mu.Unlock()
		return
	}
	now := m.cfg.Clock.Now()
	if m.claimed && now.Sub(m.claimedAt) < m.cfg.Window {
		m.mu.Unlock()
		m.cfg.Log.Debug().Str("signal", string(kind)).Msg("Integrity signal coalesced")
		return
	}
	m.claimed = true
	m.claimedAt = now

	// At the limit the session is ending; a later signal only re-requests the
	// submit in case the previous attempt failed to save.
	if m.count >= m.cfg.Limit {
		v := Violation{Kind: kind, Count: m.count, Limit: m.cfg.Limit, At: now}
		m.mu.Unlock()
		if m.cfg.OnBreach != nil {
			m.cfg.OnBreach(v)
		}
		return
	}

	m.count++
	v := Violation{Kind: kind, Count: m.count, Limit: m.cfg.Limit, At: now}
	m.mu.Unlock()

	m.cfg.Log.Info().
		Str("signal", string(kind)).
		Int("count", v.Count).
		Int("limit", v.Limit).
		Msg("Integrity violation recorded")

	if m.cfg.OnViolation != nil {
		m.cfg.OnViolation(v)
	}
	if v.Breached() && m.cfg.OnBreach != nil {
		m.cfg.OnBreach(v)
	}
}

func (m *Monitor) fullscreenChanged(active bool) {
	m.mu.Lock()
	m.fullscreen = active
	observing := m.active && !m.suspended
	m.mu.Unlock()

	if observing && !active && m.cfg.OnFullscreen != nil {
		m.cfg.OnFullscreen(active)
	}
}

func (m *Monitor) unloadAttempt() UnloadPrompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return UnloadPrompt{}
	}
	return UnloadPrompt{Confirm: true, Message: m.cfg.UnloadMessage}
}
