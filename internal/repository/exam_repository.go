package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exam-portal/internal/model"
)

var ErrDuplicateSecretCode = errors.New("exam with this secret code already exists")

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

const examColumns = `id, title, description, secret_code, duration_minutes, total_marks,
	        is_active, leaderboard_released, created_by, created_at`

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.Title, &e.Description, &e.SecretCode, &e.DurationMinutes, &e.TotalMarks,
		&e.IsActive, &e.LeaderboardReleased, &e.CreatedBy, &e.CreatedAt)
}

// GetByID retrieves an exam by its UUID, without questions.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id), e)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// FindActiveByCode retrieves an active exam by its secret code.
func (r *ExamRepository) FindActiveByCode(ctx context.Context, code string) (*model.Exam, error) {
	e := &model.Exam{}
	err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE secret_code = $1 AND is_active = TRUE`, code), e)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListByAuthorPaginated returns a page of exams, newest first, with the total count.
// An authorID of 0 lists every exam.
func (r *ExamRepository) ListByAuthorPaginated(ctx context.Context, authorID, limit, offset int) ([]model.Exam, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exams WHERE ($1 = 0 OR created_by = $1)`, authorID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE ($1 = 0 OR created_by = $1)
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		authorID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	exams := make([]model.Exam, 0)
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// SetActive opens or closes an exam.
func (r *ExamRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE exams SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListQuestions returns the exam's questions in paper order.
func (r *ExamRepository) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.text, q.image, q.options, q.correct_answers, q.marks,
		        q.chapter_name, q.co_number, q.subject
		 FROM exam_questions eq
		 JOIN questions q ON q.id = eq.question_id
		 WHERE eq.exam_id = $1
		 ORDER BY eq.order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := make([]model.Question, 0)
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.Image, &q.Options, &q.CorrectAnswers, &q.Marks,
			&q.ChapterName, &q.CONumber, &q.Subject); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetWithQuestions retrieves an exam together with its ordered questions.
func (r *ExamRepository) GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	qs, err := r.ListQuestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	e.Questions = qs
	return e, nil
}

// CreateWithQuestions inserts an exam, its questions and the paper order in one transaction.
func (r *ExamRepository) CreateWithQuestions(ctx context.Context, e *model.Exam) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO exams (title, description, secret_code, duration_minutes, total_marks, is_active, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		e.Title, e.Description, e.SecretCode, e.DurationMinutes, e.TotalMarks, e.IsActive, e.CreatedBy,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSecretCode
		}
		return fmt.Errorf("insert exam: %w", err)
	}

	for i := range e.Questions {
		q := &e.Questions[i]
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (text, image, options, correct_answers, marks, chapter_name, co_number, subject, created_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id`,
			q.Text, q.Image, q.Options, q.CorrectAnswers, q.Marks, q.ChapterName, q.CONumber, q.Subject, e.CreatedBy,
		).Scan(&q.ID)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO exam_questions (exam_id, question_id, order_num) VALUES ($1, $2, $3)`,
			e.ID, q.ID, i,
		); err != nil {
			return fmt.Errorf("link question %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}
