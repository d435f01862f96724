package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/session"
)

var ErrNotExamAuthor = errors.New("not the author of this exam")

// ExamAuthoring is the slice of the exam repository teachers write through.
type ExamAuthoring interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListByAuthorPaginated(ctx context.Context, authorID, limit, offset int) ([]model.Exam, int, error)
	CreateWithQuestions(ctx context.Context, e *model.Exam) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// ExamCache drops cached exam definitions after a change.
type ExamCache interface {
	InvalidateExam(ctx context.Context, examID uuid.UUID) error
}

// ExamService handles exam authoring for teachers.
type ExamService struct {
	examRepo ExamAuthoring
	cache    ExamCache
	log      zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(examRepo ExamAuthoring, cache ExamCache, log zerolog.Logger) *ExamService {
	return &ExamService{
		examRepo: examRepo,
		cache:    cache,
		log:      log.With().Str("component", "exam_service").Logger(),
	}
}

// GetForAuthor retrieves an exam with its answer key. Teachers only see their
// own exams; admins see every exam.
func (s *ExamService) GetForAuthor(ctx context.Context, id uuid.UUID, userID int, role model.Role) (*model.Exam, error) {
	exam, err := s.examRepo.GetWithQuestions(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if role != model.RoleAdmin && exam.CreatedBy != userID {
		return nil, ErrNotExamAuthor
	}
	return exam, nil
}

// ListByAuthor retrieves exams, filtered by author unless the caller is an admin.
func (s *ExamService) ListByAuthor(ctx context.Context, userID int, role model.Role, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	authorID := userID
	if role == model.RoleAdmin {
		authorID = 0
	}

	exams, total, err := s.examRepo.ListByAuthorPaginated(ctx, authorID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}

	return exams, response.NewPagination(page, perPage, total), nil
}

// Create validates and stores an exam with its questions.
func (s *ExamService) Create(ctx context.Context, req model.CreateExamRequest, authorID int) (*model.Exam, error) {
	req.SecretCode = strings.TrimSpace(req.SecretCode)
	exam := req.ToExam(authorID)

	// Provisional ids let the paper pass session validation; the database assigns the real ones.
	for i := range exam.Questions {
		exam.Questions[i].ID = uuid.New()
	}
	if err := session.ValidateExam(exam); err != nil {
		return nil, err
	}

	if err := s.examRepo.CreateWithQuestions(ctx, exam); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("author_id", authorID).
		Int("questions", len(exam.Questions)).
		Msg("Exam created")
	return exam, nil
}

// SetActive opens or closes an exam and drops its cached definition.
func (s *ExamService) SetActive(ctx context.Context, id uuid.UUID, userID int, role model.Role, active bool) error {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.ErrExamNotFound
		}
		return fmt.Errorf("get exam: %w", err)
	}
	if role != model.RoleAdmin && exam.CreatedBy != userID {
		return ErrNotExamAuthor
	}

	if err := s.examRepo.SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if err := s.cache.InvalidateExam(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to invalidate exam cache")
	}
	return nil
}
