package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/model"
)

// State is the lifecycle position of a session.
type State int

const (
	StateRegistering State = iota
	StateInProgress
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateRegistering:
		return "registering"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// Trigger names what asked for the submit.
type Trigger int

const (
	TriggerManual Trigger = iota
	TriggerTimer
	TriggerIntegrity
)

func (t Trigger) String() string {
	switch t {
	case TriggerManual:
		return "manual"
	case TriggerTimer:
		return "timer"
	case TriggerIntegrity:
		return "integrity"
	}
	return "unknown"
}

// Auto reports whether the student did not ask for this submit themselves.
func (t Trigger) Auto() bool {
	return t != TriggerManual
}

// Registration is collected from the student right before the exam starts.
type Registration struct {
	RollNumber string
	Phone      string
}

// Identity is the authenticated student taking the exam.
type Identity struct {
	StudentID int
	Name      string
}

// StartInfo describes a session that just entered InProgress.
type StartInfo struct {
	ExamID       uuid.UUID
	StudentID    int
	StartedAt    time.Time
	Registration Registration
	Resumed      bool
	Restored     bool
}

// Listener observes session events, e.g. to mirror them into queues.
// Calls are made outside the session lock.
type Listener interface {
	SessionStarted(info StartInfo)
	AnswerChanged(questionID uuid.UUID, selected []string)
	ViolationRecorded(v Violation)
	Submitted(sub *model.Submission)
}

// Config wires a session to its collaborators.
type Config struct {
	Exam       *model.Exam
	Student    Identity
	Sink       SubmissionSink
	Scratch    ScratchStore
	ScratchKey string
	Signals    SignalSource
	Clock      Clock
	Log        zerolog.Logger

	ViolationLimit int
	CoalesceWindow time.Duration
	UnloadMessage  string
	// SaveTimeout bounds submits started by the timer or the integrity monitor.
	SaveTimeout time.Duration
	NewID       func() uuid.UUID
}

// Status is a point-in-time snapshot of a session.
type Status struct {
	State          State
	Submitting     bool
	Current        int
	Remaining      int
	Violations     int
	ViolationLimit int
	Fullscreen     bool
	Answers        Answers
	StartedAt      time.Time
	Submission     *model.Submission
}

// Session is one student's attempt at one exam.
// Registering → InProgress → Completed; every submit trigger goes through Submit.
type Session struct {
	cfg     Config
	exam    *model.Exam
	log     zerolog.Logger
	answers *AnswerStore
	timer   *Timer
	monitor *Monitor

	mu           sync.Mutex
	state        State
	submitting   bool
	current      int
	startedAt    time.Time
	registration Registration
	submissionID uuid.UUID
	submission   *model.Submission
	presenter    Presenter
	listeners    []Listener
	closed       bool
}

// New validates the exam and builds a session in the Registering state.
func New(cfg Config) (*Session, error) {
	if err := ValidateExam(cfg.Exam); err != nil {
		return nil, err
	}
	if cfg.Sink == nil {
		return nil, errors.New("session: submission sink is required")
	}
	if cfg.Scratch == nil {
		return nil, errors.New("session: scratch store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = NewRealClock()
	}
	if cfg.ScratchKey == "" {
		cfg.ScratchKey = fmt.Sprintf("exam_%s_answers", cfg.Exam.ID)
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 15 * time.Second
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.New
	}

	log := cfg.Log.With().
		Str("component", "session").
		Str("exam_id", cfg.Exam.ID.String()).
		Int("student_id", cfg.Student.StudentID).
		Logger()

	s := &Session{
		cfg:          cfg,
		exam:         cfg.Exam,
		log:          log,
		answers:      NewAnswerStore(cfg.Scratch, cfg.ScratchKey, cfg.Clock, log),
		state:        StateRegistering,
		submissionID: cfg.NewID(),
		presenter:    NopPresenter{},
	}
	s.timer = NewTimer(cfg.Clock, s.onTick, func() { s.autoSubmit(TriggerTimer) })
	s.monitor = NewMonitor(MonitorConfig{
		Limit:         cfg.ViolationLimit,
		Window:        cfg.CoalesceWindow,
		UnloadMessage: cfg.UnloadMessage,
		Clock:         cfg.Clock,
		Log:           log,
		OnViolation:   s.onViolation,
		OnBreach:      func(Violation) { s.autoSubmit(TriggerIntegrity) },
		OnFullscreen:  s.onFullscreenExit,
	})
	return s, nil
}

func (s *Session) Exam() *model.Exam { return s.exam }

func (s *Session) SubmissionID() uuid.UUID { return s.submissionID }

// Attach routes notices to p. The previous presenter is replaced.
func (s *Session) Attach(p Presenter) {
	s.mu.Lock()
	s.presenter = p
	s.mu.Unlock()
}

// Detach drops p if it is still the attached presenter.
func (s *Session) Detach(p Presenter) {
	s.mu.Lock()
	if s.presenter == p {
		s.presenter = NopPresenter{}
	}
	s.mu.Unlock()
}

func (s *Session) AddListener(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Start validates the registration and moves the session into InProgress.
func (s *Session) Start(ctx context.Context, reg Registration) error {
	return s.start(ctx, reg, time.Time{})
}

// Resume starts a session whose attempt began at startedAt, e.g. after a server
// restart. The timer is seeded with what is left of the exam duration.
func (s *Session) Resume(ctx context.Context, reg Registration, startedAt time.Time) error {
	return s.start(ctx, reg, startedAt)
}

func (s *Session) start(ctx context.Context, reg Registration, startedAt time.Time) error {
	reg.RollNumber = strings.TrimSpace(reg.RollNumber)
	reg.Phone = strings.TrimSpace(reg.Phone)
	if reg.RollNumber == "" || reg.Phone == "" {
		return ErrRegistrationIncomplete
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateRegistering {
		s.mu.Unlock()
		return ErrNotRegistering
	}

	now := s.cfg.Clock.Now()
	resumed := !startedAt.IsZero()
	if !resumed {
		startedAt = now
	}
	remaining := s.exam.DurationSeconds() - int(now.Sub(startedAt)/time.Second)
	if remaining < 0 {
		remaining = 0
	}

	s.state = StateInProgress
	s.registration = reg
	s.startedAt = startedAt
	restored := s.answers.Restore(ctx)
	p := s.presenter
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	s.log.Info().
		Bool("resumed", resumed).
		Bool("restored", restored).
		Int("remaining_seconds", remaining).
		Msg("Exam session started")

	s.monitor.Start(s.cfg.Signals)
	p.RequestFullscreen()
	p.Notify(Notice{Kind: NoticeExamStarted, Remaining: remaining, Limit: s.monitor.Limit()})

	info := StartInfo{
		ExamID:       s.exam.ID,
		StudentID:    s.cfg.Student.StudentID,
		StartedAt:    startedAt,
		Registration: reg,
		Resumed:      resumed,
		Restored:     restored,
	}
	for _, l := range listeners {
		l.SessionStarted(info)
	}

	s.timer.Start(remaining)
	return nil
}

// Select records optionID for questionID under the question's selection rule.
func (s *Session) Select(ctx context.Context, questionID uuid.UUID, optionID string) ([]string, error) {
	s.mu.Lock()
	if s.state != StateInProgress {
		s.mu.Unlock()
		return nil, ErrNotInProgress
	}
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrSubmitting
	}
	q := s.exam.Question(questionID)
	if q == nil {
		s.mu.Unlock()
		return nil, ErrUnknownQuestion
	}
	if !q.HasOption(optionID) {
		s.mu.Unlock()
		return nil, ErrUnknownOption
	}
	selected := s.answers.Select(ctx, q, optionID)
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.AnswerChanged(questionID, selected)
	}
	return selected, nil
}

// Next moves to the following question and returns the new index.
func (s *Session) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gotoLocked(s.current + 1)
}

// Previous moves to the preceding question and returns the new index.
func (s *Session) Previous() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gotoLocked(s.current - 1)
}

// Goto moves to question i, clamped to the exam's question range.
func (s *Session) Goto(i int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gotoLocked(i)
}

func (s *Session) gotoLocked(i int) int {
	last := len(s.exam.Questions) - 1
	s.current = max(0, min(i, last))
	return s.current
}

// Submit scores and saves the attempt. Only one submit runs at a time; a second
// trigger while one is in flight returns ErrAlreadySubmitting and one after
// success returns ErrAlreadyCompleted together with the saved submission.
// A failed save leaves the session InProgress so any trigger can retry.
func (s *Session) Submit(ctx context.Context, trigger Trigger) (*model.Submission, error) {
	s.mu.Lock()
	switch {
	case s.state == StateCompleted:
		sub := s.submission
		s.mu.Unlock()
		return sub, ErrAlreadyCompleted
	case s.closed:
		s.mu.Unlock()
		return nil, ErrClosed
	case s.submitting:
		s.mu.Unlock()
		return nil, ErrAlreadySubmitting
	case s.state != StateInProgress:
		s.mu.Unlock()
		return nil, ErrNotInProgress
	case trigger == TriggerManual && s.current != len(s.exam.Questions)-1:
		s.mu.Unlock()
		return nil, ErrNotOnFinalQuestion
	}
	s.submitting = true
	p := s.presenter
	s.mu.Unlock()

	// The submitting latch keeps Select out while scratch is read.
	s.monitor.Suspend()
	p.Notify(Notice{Kind: NoticeSubmitting, Auto: trigger.Auto()})

	answers := s.answers.Reconcile(ctx)
	result := Score(s.exam.Questions, answers)
	sub := s.buildSubmission(answers, result, trigger)

	if err := s.cfg.Sink.SaveSubmission(ctx, sub); err != nil {
		// Another session already recorded this attempt; retrying cannot succeed.
		final := errors.Is(err, ErrAlreadyAttempted)

		s.mu.Lock()
		s.submitting = false
		s.closed = s.closed || final
		p = s.presenter
		s.mu.Unlock()

		if final {
			s.timer.Stop()
			s.monitor.Stop()
		} else {
			s.monitor.Resume()
			s.timer.RearmIfExpired()
		}

		s.log.Error().Err(err).
			Str("trigger", trigger.String()).
			Str("submission_id", sub.ID.String()).
			Msg("Failed to save submission")
		p.Notify(Notice{Kind: NoticeSubmitFailed, Auto: trigger.Auto(), Err: err})
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	s.mu.Lock()
	s.state = StateCompleted
	s.submitting = false
	s.submission = sub
	p = s.presenter
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	s.timer.Stop()
	s.monitor.Stop()
	if err := s.answers.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear scratch answers")
	}

	s.log.Info().
		Str("trigger", trigger.String()).
		Str("submission_id", sub.ID.String()).
		Int("score", sub.Score).
		Int("total_marks", sub.TotalMarks).
		Msg("Exam submitted")

	p.ExitFullscreen()
	p.Notify(Notice{Kind: NoticeSubmitted, Auto: trigger.Auto()})
	for _, l := range listeners {
		l.Submitted(sub)
	}
	return sub, nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:          s.state,
		Submitting:     s.submitting,
		Current:        s.current,
		Remaining:      s.timer.Remaining(),
		Violations:     s.monitor.Count(),
		ViolationLimit: s.monitor.Limit(),
		Fullscreen:     s.monitor.Fullscreen(),
		Answers:        s.answers.Current(),
		StartedAt:      s.startedAt,
		Submission:     s.submission,
	}
}

// Close stops the timer and the monitor without submitting. A closed session
// cannot start or submit.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.timer.Stop()
	s.monitor.Stop()
}

// Abandon closes the session only if it is still Registering, deciding under
// the same lock Start takes, so exactly one of them wins.
func (s *Session) Abandon() bool {
	s.mu.Lock()
	if s.closed || s.state != StateRegistering {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.mu.Unlock()
	s.timer.Stop()
	s.monitor.Stop()
	return true
}

func (s *Session) buildSubmission(answers Answers, result Result, trigger Trigger) *model.Submission {
	list := make([]model.Answer, len(s.exam.Questions))
	for i, q := range s.exam.Questions {
		selected := answers[q.ID]
		if selected == nil {
			selected = []string{}
		}
		list[i] = model.Answer{QuestionID: q.ID, SelectedOptions: selected}
	}

	total := s.exam.TotalMarks
	if total <= 0 {
		total = result.TotalMarks
	}

	return &model.Submission{
		ID:                 s.submissionID,
		StudentID:          s.cfg.Student.StudentID,
		StudentName:        s.cfg.Student.Name,
		StudentRollNumber:  s.registration.RollNumber,
		StudentPhone:       s.registration.Phone,
		ExamID:             s.exam.ID,
		ExamTitle:          s.exam.Title,
		Answers:            list,
		Score:              result.Score,
		TotalMarks:         total,
		StartTime:          s.startedAt,
		EndTime:            s.cfg.Clock.Now(),
		Released:           false,
		AutoSubmitted:      trigger.Auto(),
		Violations:         s.monitor.Count(),
		ChapterPerformance: result.ChapterPerformance,
		COPerformance:      result.COPerformance,
	}
}

func (s *Session) autoSubmit(trigger Trigger) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SaveTimeout)
	defer cancel()

	if _, err := s.Submit(ctx, trigger); err != nil && !IsBenignSubmitError(err) {
		s.log.Warn().Err(err).Str("trigger", trigger.String()).Msg("Automatic submit did not complete")
	}
}

func (s *Session) onTick(remaining int) {
	s.mu.Lock()
	p := s.presenter
	s.mu.Unlock()
	p.Notify(Notice{Kind: NoticeTimeRemaining, Remaining: remaining})
}

func (s *Session) onViolation(v Violation) {
	s.mu.Lock()
	p := s.presenter
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	kind := NoticeViolationWarning
	if v.Breached() {
		kind = NoticeViolationLimit
	}
	p.Notify(Notice{Kind: kind, Count: v.Count, Limit: v.Limit})
	for _, l := range listeners {
		l.ViolationRecorded(v)
	}
}

func (s *Session) onFullscreenExit(bool) {
	s.mu.Lock()
	p := s.presenter
	active := s.state == StateInProgress && !s.submitting
	s.mu.Unlock()
	if active {
		p.Notify(Notice{Kind: NoticeFullscreenExited})
	}
}
