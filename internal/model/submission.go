package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is the final selection for one question.
type Answer struct {
	QuestionID      uuid.UUID `json:"question_id"`
	SelectedOptions []string  `json:"selected_options"`
}

// Performance is the score earned against the marks available in one bucket.
type Performance struct {
	Score int `json:"score"`
	Total int `json:"total"`
}

// Submission is the immutable record of a finished exam attempt.
type Submission struct {
	ID                 uuid.UUID              `json:"id"`
	StudentID          int                    `json:"student_id"`
	StudentName        string                 `json:"student_name"`
	StudentRollNumber  string                 `json:"student_roll_number"`
	StudentPhone       string                 `json:"student_phone"`
	ExamID             uuid.UUID              `json:"exam_id"`
	ExamTitle          string                 `json:"exam_title"`
	Answers            []Answer               `json:"answers"`
	Score              int                    `json:"score"`
	TotalMarks         int                    `json:"total_marks"`
	StartTime          time.Time              `json:"start_time"`
	EndTime            time.Time              `json:"end_time"`
	Released           bool                   `json:"released"`
	Feedback           *string                `json:"feedback,omitempty"`
	AutoSubmitted      bool                   `json:"auto_submitted"`
	Violations         int                    `json:"violations"`
	ChapterPerformance map[string]Performance `json:"chapter_performance,omitempty"`
	COPerformance      map[string]Performance `json:"co_performance,omitempty"`
}

// SubmissionView is what a student sees of their own submission.
// Score and feedback stay hidden until the result is released.
type SubmissionView struct {
	ID         uuid.UUID `json:"id"`
	ExamID     uuid.UUID `json:"exam_id"`
	ExamTitle  string    `json:"exam_title"`
	EndTime    time.Time `json:"end_time"`
	Released   bool      `json:"released"`
	Score      *int      `json:"score,omitempty"`
	TotalMarks int       `json:"total_marks"`
	Feedback   *string   `json:"feedback,omitempty"`
}

// View returns the student-facing projection of the submission.
func (s *Submission) View() SubmissionView {
	v := SubmissionView{
		ID:         s.ID,
		ExamID:     s.ExamID,
		ExamTitle:  s.ExamTitle,
		EndTime:    s.EndTime,
		Released:   s.Released,
		TotalMarks: s.TotalMarks,
	}
	if s.Released {
		score := s.Score
		v.Score = &score
		v.Feedback = s.Feedback
	}
	return v
}

// ExamSessionState is the live state of a student's session, used to rehydrate a client.
type ExamSessionState struct {
	ExamID           uuid.UUID           `json:"exam_id"`
	State            string              `json:"state"`
	Submitting       bool                `json:"submitting"`
	CurrentQuestion  int                 `json:"current_question"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	Violations       int                 `json:"violations"`
	ViolationLimit   int                 `json:"violation_limit"`
	Fullscreen       bool                `json:"fullscreen"`
	Answers          map[string][]string `json:"answers"`
	StartedAt        *time.Time          `json:"started_at,omitempty"`
}

// RegisterRequest carries the details collected right before the exam starts.
type RegisterRequest struct {
	RollNumber string `json:"roll_number" binding:"required,notblank,max=50"`
	Phone      string `json:"phone" binding:"required,notblank,max=30"`
}
