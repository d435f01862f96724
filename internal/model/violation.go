package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind names the integrity signal that counted.
type ViolationKind string

const (
	ViolationHidden ViolationKind = "hidden"
	ViolationBlur   ViolationKind = "blur"
)

// Violation is one counted attempt to leave the exam surface.
type Violation struct {
	ExamID     uuid.UUID     `json:"exam_id"`
	StudentID  int           `json:"student_id"`
	Kind       ViolationKind `json:"kind"`
	Count      int           `json:"count"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// AnswerSnapshot mirrors one in-progress selection for the autosave worker.
type AnswerSnapshot struct {
	ExamID     uuid.UUID `json:"exam_id"`
	StudentID  int       `json:"student_id"`
	QuestionID uuid.UUID `json:"question_id"`
	Selected   []string  `json:"selected"`
	UpdatedAt  time.Time `json:"updated_at"`
}
