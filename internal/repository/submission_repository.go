package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/session"
)

const attemptIndex = "idx_exam_results_student"

// SubmissionRepository handles exam result data access.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// Upsert stores a submission keyed by its id. Saving the same id again
// overwrites the row; a different id for the same student and exam is
// rejected with session.ErrAlreadyAttempted.
func (r *SubmissionRepository) Upsert(ctx context.Context, s *model.Submission) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_results (
		     id, exam_id, student_id, student_name, student_roll_number, student_phone, exam_title,
		     answers, score, total_marks, start_time, end_time, released, feedback,
		     auto_submitted, violations, chapter_performance, co_performance)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (id) DO UPDATE SET
		     answers = EXCLUDED.answers,
		     score = EXCLUDED.score,
		     total_marks = EXCLUDED.total_marks,
		     end_time = EXCLUDED.end_time,
		     auto_submitted = EXCLUDED.auto_submitted,
		     violations = EXCLUDED.violations,
		     chapter_performance = EXCLUDED.chapter_performance,
		     co_performance = EXCLUDED.co_performance,
		     updated_at = NOW()`,
		s.ID, s.ExamID, s.StudentID, s.StudentName, s.StudentRollNumber, s.StudentPhone, s.ExamTitle,
		s.Answers, s.Score, s.TotalMarks, s.StartTime, s.EndTime, s.Released, s.Feedback,
		s.AutoSubmitted, s.Violations, performanceOrEmpty(s.ChapterPerformance), performanceOrEmpty(s.COPerformance),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == attemptIndex {
		return fmt.Errorf("%w: submission %s", session.ErrAlreadyAttempted, s.ID)
	}
	return err
}

// ExistsForStudent reports whether the student already has a result for the exam.
func (r *SubmissionRepository) ExistsForStudent(ctx context.Context, examID uuid.UUID, studentID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_results WHERE exam_id = $1 AND student_id = $2)`,
		examID, studentID,
	).Scan(&exists)
	return exists, err
}

// ListByStudent retrieves all results of a student, newest first.
func (r *SubmissionRepository) ListByStudent(ctx context.Context, studentID int) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, student_id, student_name, student_roll_number, student_phone, exam_title,
		        answers, score, total_marks, start_time, end_time, released, feedback,
		        auto_submitted, violations, chapter_performance, co_performance
		 FROM exam_results
		 WHERE student_id = $1
		 ORDER BY end_time DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]model.Submission, 0)
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(&s.ID, &s.ExamID, &s.StudentID, &s.StudentName, &s.StudentRollNumber, &s.StudentPhone, &s.ExamTitle,
			&s.Answers, &s.Score, &s.TotalMarks, &s.StartTime, &s.EndTime, &s.Released, &s.Feedback,
			&s.AutoSubmitted, &s.Violations, &s.ChapterPerformance, &s.COPerformance); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func performanceOrEmpty(m map[string]model.Performance) map[string]model.Performance {
	if m == nil {
		return map[string]model.Performance{}
	}
	return m
}
