package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/session"
)

// ExamStore is the slice of the exam repository the gateway reads from.
type ExamStore interface {
	GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// SubmissionStore persists finished attempts.
type SubmissionStore interface {
	Upsert(ctx context.Context, s *model.Submission) error
}

// ExamGateway is the session's persistence collaborator: exams come from
// PostgreSQL through a Redis cache, submissions go straight to PostgreSQL.
type ExamGateway struct {
	exams       ExamStore
	submissions SubmissionStore
	rdb         *redis.Client
	ttl         time.Duration
	log         zerolog.Logger
}

// NewExamGateway creates a new ExamGateway. A nil rdb disables caching.
func NewExamGateway(exams ExamStore, submissions SubmissionStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ExamGateway {
	return &ExamGateway{
		exams:       exams,
		submissions: submissions,
		rdb:         rdb,
		ttl:         ttl,
		log:         log.With().Str("component", "exam_gateway").Logger(),
	}
}

var _ session.Gateway = (*ExamGateway)(nil)

// LoadExam returns the full exam definition, answer key included.
func (g *ExamGateway) LoadExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	key := config.CacheKey.ExamDefinitionKey(examID.String())

	if g.rdb != nil {
		raw, err := g.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var exam model.Exam
			if jsonErr := json.Unmarshal(raw, &exam); jsonErr == nil {
				return &exam, nil
			}
			g.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt cached exam definition, reloading")
		case !errors.Is(err, redis.Nil):
			g.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Exam cache unavailable")
		}
	}

	exam, err := g.exams.GetWithQuestions(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if !exam.IsActive {
		return nil, session.ErrExamNotFound
	}

	// An empty paper may still be filling up; let the loader retry against the database.
	if g.rdb != nil && len(exam.Questions) > 0 {
		if raw, err := json.Marshal(exam); err == nil {
			if err := g.rdb.Set(ctx, key, raw, g.ttl).Err(); err != nil {
				g.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to cache exam definition")
			}
		}
	}
	return exam, nil
}

// SaveSubmission upserts by submission id, so a retried save never creates a second attempt.
func (g *ExamGateway) SaveSubmission(ctx context.Context, sub *model.Submission) error {
	if err := g.submissions.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

// InvalidateExam drops the cached definition.
func (g *ExamGateway) InvalidateExam(ctx context.Context, examID uuid.UUID) error {
	if g.rdb == nil {
		return nil
	}
	return g.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(examID.String())).Err()
}
