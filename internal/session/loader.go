package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/model"
)

// ExamSource supplies exam definitions. Returns ErrExamNotFound for unknown ids.
type ExamSource interface {
	LoadExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
}

// SubmissionSink durably stores final submissions. Saving the same submission
// id twice must not create a second record.
type SubmissionSink interface {
	SaveSubmission(ctx context.Context, sub *model.Submission) error
}

// Gateway is the persistence collaborator of a session.
type Gateway interface {
	ExamSource
	SubmissionSink
}

const (
	DefaultLoadRetries    = 3
	DefaultLoadRetryDelay = 1500 * time.Millisecond
)

// Loader fetches an exam, retrying a bounded number of times while the
// question list comes back empty (the upstream store may lag behind).
type Loader struct {
	Source  ExamSource
	Retries int
	Delay   time.Duration
	Log     zerolog.Logger
}

func (l Loader) Load(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	for attempt := 0; ; attempt++ {
		exam, err := l.Source.LoadExam(ctx, examID)
		if err != nil {
			return nil, fmt.Errorf("load exam: %w", err)
		}

		if len(exam.Questions) > 0 {
			if err := ValidateExam(exam); err != nil {
				return nil, err
			}
			return exam, nil
		}

		if attempt >= l.Retries {
			return nil, ErrNoQuestions
		}

		l.Log.Warn().
			Str("exam_id", examID.String()).
			Int("attempt", attempt+1).
			Int("max_retries", l.Retries).
			Msg("Exam has no questions yet, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Delay):
		}
	}
}

// ValidateExam checks the invariants a session relies on.
func ValidateExam(exam *model.Exam) error {
	if exam == nil {
		return fmt.Errorf("%w: missing exam", ErrInvalidExam)
	}
	if exam.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidExam)
	}
	if len(exam.Questions) == 0 {
		return ErrNoQuestions
	}

	seen := make(map[uuid.UUID]struct{}, len(exam.Questions))
	for i := range exam.Questions {
		q := &exam.Questions[i]
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question %s", ErrInvalidExam, q.ID)
		}
		seen[q.ID] = struct{}{}

		if q.Marks <= 0 {
			return fmt.Errorf("%w: question %s has no marks", ErrInvalidExam, q.ID)
		}
		if len(q.Options) == 0 {
			return fmt.Errorf("%w: question %s has no options", ErrInvalidExam, q.ID)
		}

		opts := make(map[string]struct{}, len(q.Options))
		for _, o := range q.Options {
			if _, dup := opts[o.ID]; dup {
				return fmt.Errorf("%w: question %s repeats option %q", ErrInvalidExam, q.ID, o.ID)
			}
			opts[o.ID] = struct{}{}
		}

		if len(q.CorrectAnswers) == 0 {
			return fmt.Errorf("%w: question %s has no correct answer", ErrInvalidExam, q.ID)
		}
		correct := make(map[string]struct{}, len(q.CorrectAnswers))
		for _, c := range q.CorrectAnswers {
			if _, ok := opts[c]; !ok {
				return fmt.Errorf("%w: question %s marks unknown option %q correct", ErrInvalidExam, q.ID, c)
			}
			if _, dup := correct[c]; dup {
				return fmt.Errorf("%w: question %s repeats correct option %q", ErrInvalidExam, q.ID, c)
			}
			correct[c] = struct{}{}
		}
	}
	return nil
}
