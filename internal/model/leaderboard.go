package model

import (
	"time"

	"github.com/google/uuid"
)

// LeaderboardEntry is one student's score on an exam's leaderboard.
type LeaderboardEntry struct {
	ExamID      uuid.UUID `json:"exam_id"`
	UserID      int       `json:"user_id"`
	StudentName string    `json:"student_name"`
	Score       int       `json:"score"`
	CreatedAt   time.Time `json:"created_at"`
}
