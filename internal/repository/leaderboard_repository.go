package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exam-portal/internal/model"
)

// LeaderboardRepository handles leaderboard data access.
type LeaderboardRepository struct {
	pool *pgxpool.Pool
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(pool *pgxpool.Pool) *LeaderboardRepository {
	return &LeaderboardRepository{pool: pool}
}

// ListByExam returns the exam's entries, best score first.
func (r *LeaderboardRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exam_id, user_id, student_name, score, created_at
		 FROM leaderboard
		 WHERE exam_id = $1
		 ORDER BY score DESC, created_at ASC
		 LIMIT $2`, examID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]model.LeaderboardEntry, 0)
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.ExamID, &e.UserID, &e.StudentName, &e.Score, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
