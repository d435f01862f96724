package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/model"
)

var (
	qSingle = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	qMulti  = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	qLast   = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func testExam() *model.Exam {
	return &model.Exam{
		ID:              uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"),
		Title:           "Computer Organisation Quiz",
		DurationMinutes: 1,
		TotalMarks:      6,
		IsActive:        true,
		Questions: []model.Question{
			{
				ID:             qSingle,
				Text:           "What is the capital of France?",
				Options:        []model.Option{{ID: "o1", Text: "London"}, {ID: "o2", Text: "Paris"}, {ID: "o3", Text: "Berlin"}},
				CorrectAnswers: []string{"o2"},
				Marks:          2,
				ChapterName:    "Geography",
				CONumber:       "CO1",
			},
			{
				ID:             qMulti,
				Text:           "Which of the following are primary colors?",
				Options:        []model.Option{{ID: "o1", Text: "Red"}, {ID: "o2", Text: "Green"}, {ID: "o3", Text: "Blue"}},
				CorrectAnswers: []string{"o1", "o3"},
				Marks:          3,
				ChapterName:    "Art",
				CONumber:       "CO2",
			},
			{
				ID:             qLast,
				Text:           "What is the formula for water?",
				Options:        []model.Option{{ID: "o1", Text: "H2O"}, {ID: "o2", Text: "CO2"}},
				CorrectAnswers: []string{"o1"},
				Marks:          1,
				ChapterName:    "Science",
				CONumber:       "CO1",
			},
		},
	}
}

// fakeClock is a virtual clock advanced explicitly by tests.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	next    Handle
	tickers map[Handle]*fakeTicker
}

type fakeTicker struct {
	interval time.Duration
	due      time.Time
	fn       func()
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		tickers: make(map[Handle]*fakeTicker),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) ScheduleTick(interval time.Duration, fn func()) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.tickers[c.next] = &fakeTicker{interval: interval, due: c.now.Add(interval), fn: fn}
	return c.next
}

func (c *fakeClock) Cancel(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tickers, h)
}

func (c *fakeClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// Advance moves time forward, firing due ticks in order without holding the lock.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var (
			due *fakeTicker
			id  Handle
		)
		for h, t := range c.tickers {
			if t.due.After(target) {
				continue
			}
			if due == nil || t.due.Before(due.due) || (t.due.Equal(due.due) && h < id) {
				due, id = t, h
			}
		}
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = due.due
		due.due = due.due.Add(due.interval)
		fn := due.fn
		c.mu.Unlock()

		fn()
	}
}

// memScratch is an in-memory ScratchStore.
type memScratch struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	setErr error

	// gate, when set, holds every Get until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

// HoldGets makes the next Get calls wait for release. entered receives once per held call.
func (m *memScratch) HoldGets() (entered <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
	m.entered = make(chan struct{}, 8)
	gate := m.gate
	return m.entered, func() { close(gate) }
}

func newMemScratch() *memScratch {
	return &memScratch{data: make(map[string][]byte)}
}

func (m *memScratch) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	gate, entered := m.gate, m.entered
	m.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrScratchMiss
	}
	return append([]byte(nil), v...), nil
}

func (m *memScratch) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memScratch) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memScratch) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

var errBackendDown = errors.New("backend unavailable")

// fakeSink records saved submissions keyed by id, like an upsert.
type fakeSink struct {
	mu       sync.Mutex
	failures int
	failErr  error
	attempts int
	saved    map[uuid.UUID]*model.Submission
	order    []uuid.UUID
	// during runs inside SaveSubmission, before the outcome is decided.
	during func()
}

func newFakeSink() *fakeSink {
	return &fakeSink{saved: make(map[uuid.UUID]*model.Submission)}
}

func (f *fakeSink) FailNext(n int) {
	f.mu.Lock()
	f.failures = n
	f.mu.Unlock()
}

// FailWith makes the next n saves return err.
func (f *fakeSink) FailWith(err error, n int) {
	f.mu.Lock()
	f.failErr = err
	f.failures = n
	f.mu.Unlock()
}

func (f *fakeSink) SaveSubmission(_ context.Context, sub *model.Submission) error {
	f.mu.Lock()
	during := f.during
	f.mu.Unlock()
	if during != nil {
		during()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		if f.failErr != nil {
			return f.failErr
		}
		return errBackendDown
	}
	if _, ok := f.saved[sub.ID]; !ok {
		f.order = append(f.order, sub.ID)
	}
	f.saved[sub.ID] = sub
	return nil
}

func (f *fakeSink) Saved() []*model.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Submission, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.saved[id])
	}
	return out
}

func (f *fakeSink) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// recordingPresenter captures everything sent to the student's screen.
type recordingPresenter struct {
	mu         sync.Mutex
	notices    []Notice
	fullscreen int
	exits      int
}

func (p *recordingPresenter) RequestFullscreen() {
	p.mu.Lock()
	p.fullscreen++
	p.mu.Unlock()
}

func (p *recordingPresenter) ExitFullscreen() {
	p.mu.Lock()
	p.exits++
	p.mu.Unlock()
}

func (p *recordingPresenter) Notify(n Notice) {
	p.mu.Lock()
	p.notices = append(p.notices, n)
	p.mu.Unlock()
}

func (p *recordingPresenter) Kinds(kind NoticeKind) []Notice {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Notice
	for _, n := range p.notices {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type harness struct {
	session   *Session
	clock     *fakeClock
	scratch   *memScratch
	sink      *fakeSink
	signals   *SignalHub
	presenter *recordingPresenter
}

type harnessOption func(*Config)

func withScratch(s *memScratch) harnessOption {
	return func(c *Config) { c.Scratch = s }
}

func withClock(clock *fakeClock) harnessOption {
	return func(c *Config) { c.Clock = clock }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		clock:     newFakeClock(),
		scratch:   newMemScratch(),
		sink:      newFakeSink(),
		signals:   NewSignalHub(),
		presenter: &recordingPresenter{},
	}
	cfg := Config{
		Exam:           testExam(),
		Student:        Identity{StudentID: 42, Name: "Ayu Lestari"},
		Sink:           h.sink,
		Scratch:        h.scratch,
		ScratchKey:     "scratch:student:42:exam:test:answers",
		Signals:        h.signals,
		Clock:          h.clock,
		Log:            zerolog.New(io.Discard),
		ViolationLimit: 3,
		CoalesceWindow: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if c, ok := cfg.Clock.(*fakeClock); ok {
		h.clock = c
	}
	if s, ok := cfg.Scratch.(*memScratch); ok {
		h.scratch = s
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.Attach(h.presenter)
	h.session = s
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.session.Start(context.Background(), Registration{RollNumber: "21CS042", Phone: "081234567890"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func (h *harness) selectOption(t *testing.T, q uuid.UUID, opt string) []string {
	t.Helper()
	sel, err := h.session.Select(context.Background(), q, opt)
	if err != nil {
		t.Fatalf("Select(%s, %s) error = %v", q, opt, err)
	}
	return sel
}

// violate simulates one tab switch: hidden and blur 10ms apart, then time passes.
func (h *harness) violate() {
	h.signals.EmitHidden()
	h.clock.Advance(10 * time.Millisecond)
	h.signals.EmitBlur()
	h.clock.Advance(500 * time.Millisecond)
}
