package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MonitorRepository provides data access for the live exam monitoring feature.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// Participant is a student who has left a trace on an exam.
type Participant struct {
	StudentID     int    `json:"student_id"`
	Name          string `json:"name"`
	Submitted     bool   `json:"submitted"`
	AutoSubmitted bool   `json:"auto_submitted"`
}

// ListParticipants returns every student with answers, violations or a result for the exam.
func (r *MonitorRepository) ListParticipants(ctx context.Context, examID uuid.UUID) ([]Participant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT u.id, u.name, res.student_id IS NOT NULL, COALESCE(res.auto, FALSE)
		 FROM users u
		 JOIN (
		     SELECT student_id FROM student_answers WHERE exam_id = $1
		     UNION SELECT student_id FROM exam_violations WHERE exam_id = $1
		     UNION SELECT student_id FROM exam_results WHERE exam_id = $1
		 ) p ON p.student_id = u.id
		 LEFT JOIN (
		     SELECT student_id, bool_or(auto_submitted) AS auto
		     FROM exam_results WHERE exam_id = $1
		     GROUP BY student_id
		 ) res ON res.student_id = u.id
		 ORDER BY u.name`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := make([]Participant, 0)
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.StudentID, &p.Name, &p.Submitted, &p.AutoSubmitted); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

// GetAnsweredCounts returns the count of answered questions for every student
// who has at least one non-empty selection mirrored for the given exam.
func (r *MonitorRepository) GetAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	return r.countByStudent(ctx,
		`SELECT student_id, COUNT(*)
		 FROM student_answers
		 WHERE exam_id = $1 AND cardinality(selected) > 0
		 GROUP BY student_id`,
		examID,
	)
}

// GetViolationCounts returns the highest violation count recorded for each student in the given exam.
func (r *MonitorRepository) GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	return r.countByStudent(ctx,
		`SELECT student_id, MAX(count)
		 FROM exam_violations
		 WHERE exam_id = $1
		 GROUP BY student_id`,
		examID,
	)
}

func (r *MonitorRepository) countByStudent(ctx context.Context, query string, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx, query, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var sid int
		var count int64
		if err := rows.Scan(&sid, &count); err != nil {
			return nil, err
		}
		counts[sid] = count
	}
	return counts, rows.Err()
}
