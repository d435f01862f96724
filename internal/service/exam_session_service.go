package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/repository"
	"github.com/stemsi/exam-portal/internal/session"
)

var (
	ErrNoLiveSession          = errors.New("no live exam session")
	ErrLeaderboardNotReleased = errors.New("leaderboard has not been released")
)

const leaderboardLimit = 100

// ExamFinder is the slice of the exam repository used outside a session.
type ExamFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	FindActiveByCode(ctx context.Context, code string) (*model.Exam, error)
}

// AttemptStore answers whether and how a student already sat an exam.
type AttemptStore interface {
	ExistsForStudent(ctx context.Context, examID uuid.UUID, studentID int) (bool, error)
	ListByStudent(ctx context.Context, studentID int) ([]model.Submission, error)
}

// LeaderboardStore reads released leaderboards.
type LeaderboardStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID, limit int) ([]model.LeaderboardEntry, error)
}

// SessionStore is the Redis-backed scratch slot plus the start record used to resume.
type SessionStore interface {
	session.ScratchStore
	SaveStart(ctx context.Context, examID uuid.UUID, studentID int, rec repository.StartRecord) error
	GetStart(ctx context.Context, examID uuid.UUID, studentID int) (*repository.StartRecord, error)
	ExpireStart(ctx context.Context, examID uuid.UUID, studentID int) error
}

type sessionKey struct {
	examID    uuid.UUID
	studentID int
}

// LiveSession is an exam session held in memory together with the signal hub
// its client feeds.
type LiveSession struct {
	*session.Session
	Signals *session.SignalHub
	events  *sessionEvents
}

// ExamSessionService owns every live session of the process, one per
// (exam, student) pair.
type ExamSessionService struct {
	cfg         *config.Config
	gateway     session.Gateway
	exams       ExamFinder
	attempts    AttemptStore
	leaderboard LeaderboardStore
	store       SessionStore
	bus         EventBus
	clock       session.Clock
	log         zerolog.Logger

	mu   sync.Mutex
	live map[sessionKey]*LiveSession
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	cfg *config.Config,
	gateway session.Gateway,
	exams ExamFinder,
	attempts AttemptStore,
	leaderboard LeaderboardStore,
	store SessionStore,
	bus EventBus,
	clock session.Clock,
	log zerolog.Logger,
) *ExamSessionService {
	if clock == nil {
		clock = session.NewRealClock()
	}
	return &ExamSessionService{
		cfg:         cfg,
		gateway:     gateway,
		exams:       exams,
		attempts:    attempts,
		leaderboard: leaderboard,
		store:       store,
		bus:         bus,
		clock:       clock,
		log:         log.With().Str("component", "exam_session_service").Logger(),
		live:        make(map[sessionKey]*LiveSession),
	}
}

func (s *ExamSessionService) loader() session.Loader {
	return session.Loader{
		Source:  s.gateway,
		Retries: s.cfg.ExamLoadRetries,
		Delay:   s.cfg.ExamLoadRetryDelay,
		Log:     s.log,
	}
}

// LookupByCode finds an active exam by its secret code for a student who has
// not attempted it yet.
func (s *ExamSessionService) LookupByCode(ctx context.Context, code string, studentID int) (*model.ExamSummary, error) {
	exam, err := s.exams.FindActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrExamNotFound
		}
		return nil, fmt.Errorf("find exam: %w", err)
	}

	if err := s.ensureNotAttempted(ctx, exam.ID, studentID); err != nil {
		return nil, err
	}

	full, err := s.loader().Load(ctx, exam.ID)
	if err != nil {
		return nil, err
	}
	summary := full.Summary()
	return &summary, nil
}

func (s *ExamSessionService) ensureNotAttempted(ctx context.Context, examID uuid.UUID, studentID int) error {
	attempted, err := s.attempts.ExistsForStudent(ctx, examID, studentID)
	if err != nil {
		return fmt.Errorf("check attempt: %w", err)
	}
	if attempted {
		return session.ErrAlreadyAttempted
	}
	return nil
}

// Open returns the student's live session for the exam, creating it when needed.
// A session that was started before a restart is resumed from its start record.
func (s *ExamSessionService) Open(ctx context.Context, examID uuid.UUID, student session.Identity) (*LiveSession, error) {
	key := sessionKey{examID: examID, studentID: student.StudentID}
	if ls := s.get(key); ls != nil {
		return ls, nil
	}

	if err := s.ensureNotAttempted(ctx, examID, student.StudentID); err != nil {
		return nil, err
	}

	exam, err := s.loader().Load(ctx, examID)
	if err != nil {
		return nil, err
	}

	hub := session.NewSignalHub()
	sess, err := session.New(session.Config{
		Exam:           exam,
		Student:        student,
		Sink:           s.gateway,
		Scratch:        s.store,
		ScratchKey:     config.CacheKey.StudentScratchAnswersKey(examID.String(), student.StudentID),
		Signals:        hub,
		Clock:          s.clock,
		Log:            s.log,
		ViolationLimit: s.cfg.ViolationLimit,
		CoalesceWindow: s.cfg.CoalesceWindow,
		SaveTimeout:    s.cfg.SaveTimeout,
	})
	if err != nil {
		return nil, err
	}

	ls := &LiveSession{
		Session: sess,
		Signals: hub,
		events:  newSessionEvents(s.bus, examID, student, s.log, func(*model.Submission) { s.finish(key) }),
	}
	sess.AddListener(ls.events)

	s.mu.Lock()
	if existing, ok := s.live[key]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.live[key] = ls
	s.mu.Unlock()

	rec, err := s.store.GetStart(ctx, examID, student.StudentID)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Int("student_id", student.StudentID).
			Msg("Failed to read session start record")
		return ls, nil
	}
	if rec != nil {
		reg := session.Registration{RollNumber: rec.RollNumber, Phone: rec.Phone}
		if err := sess.Resume(ctx, reg, rec.StartedAt); err != nil && !errors.Is(err, session.ErrNotRegistering) {
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Int("student_id", student.StudentID).
				Msg("Failed to resume exam session")
			return ls, nil
		}
		ls.events.seed(sess.Status().Answers)
	}
	return ls, nil
}

// Start registers the student and starts the countdown.
func (s *ExamSessionService) Start(ctx context.Context, ls *LiveSession, student session.Identity, reg session.Registration) error {
	if err := ls.Start(ctx, reg); err != nil {
		return err
	}

	st := ls.Status()
	rec := repository.StartRecord{StartedAt: st.StartedAt, RollNumber: reg.RollNumber, Phone: reg.Phone}
	if err := s.store.SaveStart(ctx, ls.Exam().ID, student.StudentID, rec); err != nil {
		s.log.Warn().Err(err).Str("exam_id", ls.Exam().ID.String()).Int("student_id", student.StudentID).
			Msg("Failed to store session start record")
	}
	return nil
}

// Lookup returns the live session without creating one.
func (s *ExamSessionService) Lookup(examID uuid.UUID, studentID int) (*LiveSession, bool) {
	ls := s.get(sessionKey{examID: examID, studentID: studentID})
	return ls, ls != nil
}

// State rehydrates a reloading client. Sessions started before a restart are
// resumed on the way.
func (s *ExamSessionService) State(ctx context.Context, examID uuid.UUID, student session.Identity) (*model.ExamSessionState, error) {
	ls, ok := s.Lookup(examID, student.StudentID)
	if !ok {
		rec, err := s.store.GetStart(ctx, examID, student.StudentID)
		if err != nil {
			return nil, fmt.Errorf("get start record: %w", err)
		}
		if rec == nil {
			return nil, ErrNoLiveSession
		}
		if ls, err = s.Open(ctx, examID, student); err != nil {
			return nil, err
		}
	}
	return StateOf(ls), nil
}

// StateOf converts a session snapshot into its API shape.
func StateOf(ls *LiveSession) *model.ExamSessionState {
	st := ls.Status()
	state := &model.ExamSessionState{
		ExamID:           ls.Exam().ID,
		State:            st.State.String(),
		Submitting:       st.Submitting,
		CurrentQuestion:  st.Current,
		RemainingSeconds: st.Remaining,
		Violations:       st.Violations,
		ViolationLimit:   st.ViolationLimit,
		Fullscreen:       st.Fullscreen,
		Answers:          st.Answers.Keyed(),
	}
	if !st.StartedAt.IsZero() {
		startedAt := st.StartedAt
		state.StartedAt = &startedAt
	}
	return state
}

// Paper returns the student-facing exam paper. Reading it does not open a
// session; only the stream or the start endpoint does.
func (s *ExamSessionService) Paper(ctx context.Context, examID uuid.UUID, student session.Identity) (*model.ExamPaper, error) {
	if ls := s.get(sessionKey{examID: examID, studentID: student.StudentID}); ls != nil {
		paper := ls.Exam().Paper()
		return &paper, nil
	}

	if err := s.ensureNotAttempted(ctx, examID, student.StudentID); err != nil {
		return nil, err
	}
	exam, err := s.loader().Load(ctx, examID)
	if err != nil {
		return nil, err
	}
	paper := exam.Paper()
	return &paper, nil
}

// ListSubmissions returns the student's own attempts; scores show once released.
func (s *ExamSessionService) ListSubmissions(ctx context.Context, studentID int) ([]model.SubmissionView, error) {
	subs, err := s.attempts.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	views := make([]model.SubmissionView, len(subs))
	for i := range subs {
		views[i] = subs[i].View()
	}
	return views, nil
}

// Leaderboard returns the top scores of an exam once the teacher released it.
func (s *ExamSessionService) Leaderboard(ctx context.Context, examID uuid.UUID) ([]model.LeaderboardEntry, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if !exam.LeaderboardReleased {
		return nil, ErrLeaderboardNotReleased
	}
	return s.leaderboard.ListByExam(ctx, examID, leaderboardLimit)
}

// LiveCount reports how many sessions are held in memory.
func (s *ExamSessionService) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Shutdown stops every live session without submitting. Start records and
// scratch slots stay in Redis so the next process can resume them.
func (s *ExamSessionService) Shutdown() {
	s.mu.Lock()
	live := s.live
	s.live = make(map[sessionKey]*LiveSession)
	s.mu.Unlock()

	for _, ls := range live {
		ls.Close()
	}
	s.log.Info().Int("sessions", len(live)).Msg("Live exam sessions stopped")
}

func (s *ExamSessionService) get(key sessionKey) *LiveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[key]
}

// finish drops a submitted session; later requests see the stored attempt instead.
func (s *ExamSessionService) finish(key sessionKey) {
	s.mu.Lock()
	delete(s.live, key)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := s.store.ExpireStart(ctx, key.examID, key.studentID); err != nil {
		s.log.Warn().Err(err).Str("exam_id", key.examID.String()).Int("student_id", key.studentID).
			Msg("Failed to expire session start record")
	}
}

// Evict drops a session that never started, e.g. when its client went away
// during registration.
func (s *ExamSessionService) Evict(examID uuid.UUID, studentID int) {
	key := sessionKey{examID: examID, studentID: studentID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ls, ok := s.live[key]; ok && ls.Abandon() {
		delete(s.live, key)
	}
}
