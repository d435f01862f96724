package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/session"
)

const eventTimeout = 2 * time.Second

// EventBus carries session events to the workers and the live monitor.
type EventBus interface {
	Enqueue(ctx context.Context, queue string, payload []byte) error
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisEventBus uses Redis lists for worker queues and Pub/Sub for monitors.
type RedisEventBus struct {
	rdb *redis.Client
}

func NewRedisEventBus(rdb *redis.Client) *RedisEventBus {
	return &RedisEventBus{rdb: rdb}
}

func (b *RedisEventBus) Enqueue(ctx context.Context, queue string, payload []byte) error {
	return b.rdb.RPush(ctx, queue, payload).Err()
}

func (b *RedisEventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

// Monitor event types published on the exam's monitor channel.
const (
	MonitorEventJoined    = "joined"
	MonitorEventAnswered  = "answered"
	MonitorEventViolation = "violation"
	MonitorEventSubmitted = "submitted"
)

// MonitorEvent is one live update for teachers watching an exam.
type MonitorEvent struct {
	Type          string    `json:"type"`
	StudentID     int       `json:"student_id"`
	Name          string    `json:"name,omitempty"`
	RollNumber    string    `json:"roll_number,omitempty"`
	QuestionID    string    `json:"question_id,omitempty"`
	AnsweredCount int       `json:"answered_count,omitempty"`
	Kind          string    `json:"kind,omitempty"`
	Count         int       `json:"count,omitempty"`
	Score         *int      `json:"score,omitempty"`
	TotalMarks    int       `json:"total_marks,omitempty"`
	Auto          bool      `json:"auto,omitempty"`
	Resumed       bool      `json:"resumed,omitempty"`
	At            time.Time `json:"at"`
}

// sessionEvents mirrors one session's events onto the bus and tells the
// service when the attempt is stored. Bus failures are logged and never reach
// the student. A nil bus mirrors nothing.
type sessionEvents struct {
	bus      EventBus
	examID   uuid.UUID
	student  session.Identity
	log      zerolog.Logger
	now      func() time.Time
	onSubmit func(sub *model.Submission)

	mu       sync.Mutex
	answered map[uuid.UUID]bool
}

var _ session.Listener = (*sessionEvents)(nil)

func newSessionEvents(bus EventBus, examID uuid.UUID, student session.Identity, log zerolog.Logger, onSubmit func(*model.Submission)) *sessionEvents {
	return &sessionEvents{
		bus:      bus,
		examID:   examID,
		student:  student,
		log:      log.With().Str("component", "session_events").Logger(),
		now:      time.Now,
		onSubmit: onSubmit,
		answered: make(map[uuid.UUID]bool),
	}
}

// seed counts answers restored from scratch so progress survives a resume.
func (e *sessionEvents) seed(answers session.Answers) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for qID, selected := range answers {
		e.answered[qID] = len(selected) > 0
	}
}

func (e *sessionEvents) SessionStarted(info session.StartInfo) {
	e.publish(MonitorEvent{
		Type:       MonitorEventJoined,
		StudentID:  e.student.StudentID,
		Name:       e.student.Name,
		RollNumber: info.Registration.RollNumber,
		Resumed:    info.Resumed,
		At:         info.StartedAt,
	})
}

func (e *sessionEvents) AnswerChanged(questionID uuid.UUID, selected []string) {
	now := e.now()
	e.enqueue(config.WorkerKey.PersistAnswersQueue, model.AnswerSnapshot{
		ExamID:     e.examID,
		StudentID:  e.student.StudentID,
		QuestionID: questionID,
		Selected:   selected,
		UpdatedAt:  now,
	})

	e.mu.Lock()
	e.answered[questionID] = len(selected) > 0
	count := 0
	for _, ok := range e.answered {
		if ok {
			count++
		}
	}
	e.mu.Unlock()

	e.publish(MonitorEvent{
		Type:          MonitorEventAnswered,
		StudentID:     e.student.StudentID,
		QuestionID:    questionID.String(),
		AnsweredCount: count,
		At:            now,
	})
}

func (e *sessionEvents) ViolationRecorded(v session.Violation) {
	e.enqueue(config.WorkerKey.PersistViolationsQueue, model.Violation{
		ExamID:     e.examID,
		StudentID:  e.student.StudentID,
		Kind:       model.ViolationKind(v.Kind),
		Count:      v.Count,
		RecordedAt: v.At,
	})
	e.publish(MonitorEvent{
		Type:      MonitorEventViolation,
		StudentID: e.student.StudentID,
		Kind:      string(v.Kind),
		Count:     v.Count,
		At:        v.At,
	})
}

func (e *sessionEvents) Submitted(sub *model.Submission) {
	e.enqueue(config.WorkerKey.PersistLeaderboardQueue, model.LeaderboardEntry{
		ExamID:      sub.ExamID,
		UserID:      sub.StudentID,
		StudentName: sub.StudentName,
		Score:       sub.Score,
		CreatedAt:   sub.EndTime,
	})
	// Scores stay private until released, so the monitor only learns the attempt ended.
	e.publish(MonitorEvent{
		Type:       MonitorEventSubmitted,
		StudentID:  e.student.StudentID,
		TotalMarks: sub.TotalMarks,
		Auto:       sub.AutoSubmitted,
		Count:      sub.Violations,
		At:         sub.EndTime,
	})
	if e.onSubmit != nil {
		e.onSubmit(sub)
	}
}

func (e *sessionEvents) enqueue(queue string, v any) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		e.log.Error().Err(err).Str("queue", queue).Msg("Failed to encode queue payload")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	if err := e.bus.Enqueue(ctx, queue, payload); err != nil {
		e.log.Warn().Err(err).Str("queue", queue).Int("student_id", e.student.StudentID).Msg("Failed to enqueue session event")
	}
}

func (e *sessionEvents) publish(ev MonitorEvent) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		e.log.Error().Err(err).Str("type", ev.Type).Msg("Failed to encode monitor event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()
	channel := config.CacheKey.ExamMonitorChannel(e.examID.String())
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.log.Warn().Err(err).Str("type", ev.Type).Msg("Failed to publish monitor event")
	}
}
