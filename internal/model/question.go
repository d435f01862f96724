package model

import (
	"github.com/google/uuid"
)

// Option is one selectable choice of a question.
type Option struct {
	ID   string `json:"id" binding:"required,notblank,max=20"`
	Text string `json:"text" binding:"required,notblank"`
}

// Question represents a single exam question.
// One correct answer makes it single choice, more than one makes it multi-select.
type Question struct {
	ID             uuid.UUID `json:"id"`
	Text           string    `json:"text"`
	Image          *string   `json:"image,omitempty"`
	Options        []Option  `json:"options"`
	CorrectAnswers []string  `json:"correct_answers"`
	Marks          int       `json:"marks"`
	ChapterName    string    `json:"chapter_name"`
	CONumber       string    `json:"co_number"`
	Subject        string    `json:"subject"`
}

// IsMultiSelect reports whether selections toggle instead of replace. It
// counts distinct ids so a repeated key never turns a question multi-select.
func (q *Question) IsMultiSelect() bool {
	if len(q.CorrectAnswers) < 2 {
		return false
	}
	for _, c := range q.CorrectAnswers[1:] {
		if c != q.CorrectAnswers[0] {
			return true
		}
	}
	return false
}

// HasOption reports whether optionID belongs to the question.
func (q *Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}
