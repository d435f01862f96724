package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/repository"
	"github.com/stemsi/exam-portal/internal/session"
)

var (
	examID = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	q1     = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	q2     = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	ayu    = session.Identity{StudentID: 42, Name: "Ayu Lestari"}
	ayuReg = session.Registration{RollNumber: "21CS042", Phone: "081234567890"}
)

func sampleExam() *model.Exam {
	return &model.Exam{
		ID:              examID,
		Title:           "Basic Chemistry",
		SecretCode:      "CHEM01",
		DurationMinutes: 30,
		IsActive:        true,
		Questions: []model.Question{
			{
				ID:             q1,
				Text:           "What is the formula for water?",
				Options:        []model.Option{{ID: "o1", Text: "H2O"}, {ID: "o2", Text: "CO2"}},
				CorrectAnswers: []string{"o1"},
				Marks:          2,
				ChapterName:    "Compounds",
				CONumber:       "CO1",
			},
			{
				ID:             q2,
				Text:           "Which are noble gases?",
				Options:        []model.Option{{ID: "o1", Text: "Helium"}, {ID: "o2", Text: "Oxygen"}, {ID: "o3", Text: "Neon"}},
				CorrectAnswers: []string{"o1", "o3"},
				Marks:          3,
				ChapterName:    "Elements",
				CONumber:       "CO2",
			},
		},
	}
}

// stillClock never fires ticks on its own.
type stillClock struct {
	mu    sync.Mutex
	now   time.Time
	next  session.Handle
	ticks map[session.Handle]func()
}

func newStillClock() *stillClock {
	return &stillClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), ticks: map[session.Handle]func(){}}
}

func (c *stillClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stillClock) ScheduleTick(_ time.Duration, fn func()) session.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.ticks[c.next] = fn
	return c.next
}

func (c *stillClock) Cancel(h session.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ticks, h)
}

// memDB plays PostgreSQL for the exam, its results and the leaderboard.
type memDB struct {
	mu      sync.Mutex
	exam    *model.Exam
	results map[uuid.UUID]model.Submission
	board   []model.LeaderboardEntry
	saveErr error
}

func newMemDB() *memDB {
	return &memDB{exam: sampleExam(), results: map[uuid.UUID]model.Submission{}}
}

func (m *memDB) LoadExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	if id != m.exam.ID {
		return nil, session.ErrExamNotFound
	}
	return sampleExam(), nil
}

func (m *memDB) SaveSubmission(_ context.Context, sub *model.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.results[sub.ID] = *sub
	return nil
}

func (m *memDB) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	if id != m.exam.ID {
		return nil, pgx.ErrNoRows
	}
	return m.exam, nil
}

func (m *memDB) FindActiveByCode(_ context.Context, code string) (*model.Exam, error) {
	if code != m.exam.SecretCode {
		return nil, pgx.ErrNoRows
	}
	return m.exam, nil
}

func (m *memDB) ExistsForStudent(_ context.Context, id uuid.UUID, studentID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.results {
		if r.ExamID == id && r.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memDB) ListByStudent(_ context.Context, studentID int) ([]model.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Submission
	for _, r := range m.results {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memDB) ListByExam(_ context.Context, _ uuid.UUID, _ int) ([]model.LeaderboardEntry, error) {
	return m.board, nil
}

// memRedis plays the scratch slots and start records.
type memRedis struct {
	mu      sync.Mutex
	kv      map[string][]byte
	starts  map[sessionKey]repository.StartRecord
	expired map[sessionKey]bool
}

func newMemRedis() *memRedis {
	return &memRedis{kv: map[string][]byte{}, starts: map[sessionKey]repository.StartRecord{}, expired: map[sessionKey]bool{}}
}

func (r *memRedis) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.kv[key]
	if !ok {
		return nil, session.ErrScratchMiss
	}
	return v, nil
}

func (r *memRedis) Set(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kv[key] = value
	return nil
}

func (r *memRedis) Remove(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.kv, key)
	return nil
}

func (r *memRedis) SaveStart(_ context.Context, id uuid.UUID, studentID int, rec repository.StartRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts[sessionKey{id, studentID}] = rec
	return nil
}

func (r *memRedis) GetStart(_ context.Context, id uuid.UUID, studentID int) (*repository.StartRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.starts[sessionKey{id, studentID}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *memRedis) ExpireStart(_ context.Context, id uuid.UUID, studentID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired[sessionKey{id, studentID}] = true
	return nil
}

type busMessage struct {
	target  string
	payload []byte
}

type memBus struct {
	mu        sync.Mutex
	queued    []busMessage
	published []busMessage
}

func (b *memBus) Enqueue(_ context.Context, queue string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queued = append(b.queued, busMessage{queue, payload})
	return nil
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, busMessage{channel, payload})
	return nil
}

func (b *memBus) queue(name string) []busMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []busMessage
	for _, m := range b.queued {
		if m.target == name {
			out = append(out, m)
		}
	}
	return out
}

func (b *memBus) eventTypes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, m := range b.published {
		var ev MonitorEvent
		if err := json.Unmarshal(m.payload, &ev); err == nil {
			out = append(out, ev.Type)
		}
	}
	return out
}

type serviceHarness struct {
	svc   *ExamSessionService
	db    *memDB
	rdb   *memRedis
	bus   *memBus
	clock *stillClock
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()
	cfg := &config.Config{
		ViolationLimit:     3,
		CoalesceWindow:     100 * time.Millisecond,
		ExamLoadRetries:    1,
		ExamLoadRetryDelay: time.Millisecond,
		SaveTimeout:        time.Second,
	}
	h := &serviceHarness{db: newMemDB(), rdb: newMemRedis(), bus: &memBus{}, clock: newStillClock()}
	h.svc = NewExamSessionService(cfg, h.db, h.db, h.db, h.db, h.rdb, h.bus, h.clock, zerolog.New(io.Discard))
	t.Cleanup(h.svc.Shutdown)
	return h
}

func TestExamSessionLifecycle(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	ls, err := h.svc.Open(ctx, examID, ayu)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if again, _ := h.svc.Open(ctx, examID, ayu); again != ls {
		t.Fatal("second Open returned a different session")
	}
	if err := h.svc.Start(ctx, ls, ayu, ayuReg); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, ok := h.rdb.starts[sessionKey{examID, ayu.StudentID}]; !ok {
		t.Fatal("start record not stored")
	}

	if _, err := ls.Select(ctx, q1, "o1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := ls.Select(ctx, q2, "o1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	ls.Goto(1)

	sub, err := ls.Submit(ctx, session.TriggerManual)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Score != 2 || sub.TotalMarks != 5 {
		t.Errorf("score = %d/%d, want 2/5", sub.Score, sub.TotalMarks)
	}

	if n := h.svc.LiveCount(); n != 0 {
		t.Errorf("live sessions = %d, want 0 after submit", n)
	}
	if !h.rdb.expired[sessionKey{examID, ayu.StudentID}] {
		t.Error("start record not expired after submit")
	}
	if got := len(h.bus.queue(config.WorkerKey.PersistAnswersQueue)); got != 2 {
		t.Errorf("answer snapshots = %d, want 2", got)
	}
	board := h.bus.queue(config.WorkerKey.PersistLeaderboardQueue)
	if len(board) != 1 {
		t.Fatalf("leaderboard entries = %d, want 1", len(board))
	}
	var entry model.LeaderboardEntry
	if err := json.Unmarshal(board[0].payload, &entry); err != nil || entry.Score != 2 || entry.UserID != 42 {
		t.Errorf("leaderboard entry = %+v, %v", entry, err)
	}

	types := h.bus.eventTypes()
	want := []string{MonitorEventJoined, MonitorEventAnswered, MonitorEventAnswered, MonitorEventSubmitted}
	if len(types) != len(want) {
		t.Fatalf("monitor events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}

	if _, err := h.svc.Open(ctx, examID, ayu); !errors.Is(err, session.ErrAlreadyAttempted) {
		t.Errorf("reopen err = %v, want ErrAlreadyAttempted", err)
	}
}

func TestExamSessionPaperDoesNotOpenSession(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	paper, err := h.svc.Paper(ctx, examID, ayu)
	if err != nil {
		t.Fatalf("paper: %v", err)
	}
	if len(paper.Questions) != 2 {
		t.Errorf("questions = %d, want 2", len(paper.Questions))
	}
	if n := h.svc.LiveCount(); n != 0 {
		t.Errorf("live sessions = %d, want 0 after reading the paper", n)
	}

	ls, err := h.svc.Open(ctx, examID, ayu)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := h.svc.Paper(ctx, examID, ayu); err != nil {
		t.Fatalf("paper with live session: %v", err)
	}
	if n := h.svc.LiveCount(); n != 1 {
		t.Errorf("live sessions = %d, want 1", n)
	}
	if err := h.svc.Start(ctx, ls, ayu, ayuReg); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := ls.Submit(ctx, session.TriggerManual); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := h.svc.Paper(ctx, examID, ayu); !errors.Is(err, session.ErrAlreadyAttempted) {
		t.Errorf("paper after submit err = %v, want ErrAlreadyAttempted", err)
	}
}

func TestExamSessionResumesAfterRestart(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	key := config.CacheKey.StudentScratchAnswersKey(examID.String(), ayu.StudentID)
	exam := sampleExam()
	prev := session.NewAnswerStore(h.rdb, key, h.clock, zerolog.New(io.Discard))
	prev.Select(ctx, &exam.Questions[1], "o3")

	startedAt := h.clock.Now().Add(-10 * time.Minute)
	h.rdb.starts[sessionKey{examID, ayu.StudentID}] = repository.StartRecord{
		StartedAt: startedAt, RollNumber: ayuReg.RollNumber, Phone: ayuReg.Phone,
	}

	state, err := h.svc.State(ctx, examID, ayu)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.State != session.StateInProgress.String() {
		t.Errorf("state = %s, want in progress", state.State)
	}
	if state.RemainingSeconds != 20*60 {
		t.Errorf("remaining = %d, want %d", state.RemainingSeconds, 20*60)
	}
	if got := state.Answers[q2.String()]; len(got) != 1 || got[0] != "o3" {
		t.Errorf("restored answers = %v", state.Answers)
	}
	if state.StartedAt == nil || !state.StartedAt.Equal(startedAt) {
		t.Errorf("started at = %v, want %v", state.StartedAt, startedAt)
	}
}

func TestExamSessionStateWithoutSession(t *testing.T) {
	h := newServiceHarness(t)
	if _, err := h.svc.State(context.Background(), examID, ayu); !errors.Is(err, ErrNoLiveSession) {
		t.Errorf("err = %v, want ErrNoLiveSession", err)
	}
}

func TestExamSessionFailedSaveKeepsSessionLive(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	ls, err := h.svc.Open(ctx, examID, ayu)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := h.svc.Start(ctx, ls, ayu, ayuReg); err != nil {
		t.Fatalf("start: %v", err)
	}
	ls.Goto(1)

	h.db.saveErr = errors.New("db down")
	if _, err := ls.Submit(ctx, session.TriggerManual); !errors.Is(err, session.ErrSaveFailed) {
		t.Fatalf("err = %v, want ErrSaveFailed", err)
	}
	if h.svc.LiveCount() != 1 {
		t.Fatal("session evicted after failed save")
	}

	h.db.saveErr = nil
	first, err := ls.Submit(ctx, session.TriggerManual)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(h.db.results) != 1 || first.ID != ls.SubmissionID() {
		t.Errorf("results = %d, want one record keyed by the session's submission id", len(h.db.results))
	}
}

func TestLookupByCode(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		attempted bool
		wantErr   error
	}{
		{name: "active exam", code: "CHEM01"},
		{name: "unknown code", code: "NOPE99", wantErr: session.ErrExamNotFound},
		{name: "already attempted", code: "CHEM01", attempted: true, wantErr: session.ErrAlreadyAttempted},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newServiceHarness(t)
			if tc.attempted {
				h.db.results[uuid.New()] = model.Submission{ExamID: examID, StudentID: ayu.StudentID}
			}

			summary, err := h.svc.LookupByCode(context.Background(), tc.code, ayu.StudentID)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("lookup: %v", err)
			}
			if summary.QuestionCount != 2 || summary.ID != examID {
				t.Errorf("summary = %+v", summary)
			}
		})
	}
}

func TestLeaderboardRequiresRelease(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	h.db.board = []model.LeaderboardEntry{{ExamID: examID, UserID: 42, StudentName: "Ayu Lestari", Score: 5}}

	if _, err := h.svc.Leaderboard(ctx, examID); !errors.Is(err, ErrLeaderboardNotReleased) {
		t.Fatalf("err = %v, want ErrLeaderboardNotReleased", err)
	}

	h.db.exam.LeaderboardReleased = true
	entries, err := h.svc.Leaderboard(ctx, examID)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Leaderboard() = %v, %v", entries, err)
	}

	if _, err := h.svc.Leaderboard(ctx, uuid.New()); !errors.Is(err, session.ErrExamNotFound) {
		t.Errorf("err = %v, want ErrExamNotFound", err)
	}
}

func TestListSubmissionsHidesUnreleasedScores(t *testing.T) {
	h := newServiceHarness(t)
	feedback := "Good work"
	h.db.results[uuid.New()] = model.Submission{ExamID: examID, StudentID: 42, Score: 4, Released: false}
	h.db.results[uuid.New()] = model.Submission{ExamID: uuid.New(), StudentID: 42, Score: 3, Released: true, Feedback: &feedback}

	views, err := h.svc.ListSubmissions(context.Background(), 42)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, v := range views {
		if v.Released != (v.Score != nil) {
			t.Errorf("view %+v: score visibility does not follow release", v)
		}
	}
}
