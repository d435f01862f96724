package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is a timed set of questions opened to students by its secret code.
type Exam struct {
	ID                  uuid.UUID  `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	SecretCode          string     `json:"secret_code,omitempty"`
	DurationMinutes     int        `json:"duration_minutes"`
	TotalMarks          int        `json:"total_marks"`
	IsActive            bool       `json:"is_active"`
	LeaderboardReleased bool       `json:"leaderboard_released"`
	CreatedBy           int        `json:"created_by"`
	CreatedAt           time.Time  `json:"created_at"`
	Questions           []Question `json:"questions"`
}

// DurationSeconds returns the full countdown length of the exam.
func (e *Exam) DurationSeconds() int {
	return e.DurationMinutes * 60
}

// Question returns the question with the given id, or nil.
func (e *Exam) Question(id uuid.UUID) *Question {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i]
		}
	}
	return nil
}

// LookupExamRequest is the payload a student sends to find an exam by its code.
type LookupExamRequest struct {
	SecretCode string `json:"secret_code" binding:"required,notblank,min=4,max=32"`
}

// CreateExamRequest is the payload a teacher sends to author an exam.
type CreateExamRequest struct {
	Title           string          `json:"title" binding:"required,notblank,max=255"`
	Description     string          `json:"description" binding:"max=2000"`
	SecretCode      string          `json:"secret_code" binding:"required,notblank,min=4,max=32"`
	DurationMinutes int             `json:"duration_minutes" binding:"required,min=1,max=600"`
	IsActive        bool            `json:"is_active"`
	Questions       []QuestionInput `json:"questions" binding:"required,min=1,dive"`
}

// QuestionInput is one authored question, answer key included.
type QuestionInput struct {
	Text           string   `json:"text" binding:"required,notblank"`
	Image          *string  `json:"image"`
	Options        []Option `json:"options" binding:"required,min=2,dive"`
	CorrectAnswers []string `json:"correct_answers" binding:"required,min=1,unique"`
	Marks          int      `json:"marks" binding:"required,min=1"`
	ChapterName    string   `json:"chapter_name" binding:"max=100"`
	CONumber       string   `json:"co_number" binding:"max=20"`
	Subject        string   `json:"subject" binding:"max=100"`
}

// ToExam builds the exam a request describes. Total marks are summed from the questions.
func (r *CreateExamRequest) ToExam(authorID int) *Exam {
	e := &Exam{
		Title:           r.Title,
		Description:     r.Description,
		SecretCode:      r.SecretCode,
		DurationMinutes: r.DurationMinutes,
		IsActive:        r.IsActive,
		CreatedBy:       authorID,
		Questions:       make([]Question, len(r.Questions)),
	}
	for i, q := range r.Questions {
		e.Questions[i] = Question{
			Text:           q.Text,
			Image:          q.Image,
			Options:        q.Options,
			CorrectAnswers: q.CorrectAnswers,
			Marks:          q.Marks,
			ChapterName:    q.ChapterName,
			CONumber:       q.CONumber,
			Subject:        q.Subject,
		}
		e.TotalMarks += q.Marks
	}
	return e
}

// SetExamActiveRequest opens or closes an exam for lookups.
type SetExamActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// ExamSummary is the public view of an exam shown before a session starts.
type ExamSummary struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"duration_minutes"`
	TotalMarks      int       `json:"total_marks"`
	QuestionCount   int       `json:"question_count"`
}

// ExamPaper is the exam as sent to students (no correct answers).
type ExamPaper struct {
	ExamID    uuid.UUID            `json:"exam_id"`
	Title     string               `json:"title"`
	Duration  int                  `json:"duration_minutes"`
	Questions []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID          uuid.UUID `json:"id"`
	Text        string    `json:"text"`
	Image       *string   `json:"image,omitempty"`
	Options     []Option  `json:"options"`
	Marks       int       `json:"marks"`
	MultiSelect bool      `json:"multi_select"`
	OrderNum    int       `json:"order_num"`
}

// Summary strips the exam down to what a student may see before starting.
func (e *Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:              e.ID,
		Title:           e.Title,
		Description:     e.Description,
		DurationMinutes: e.DurationMinutes,
		TotalMarks:      e.TotalMarks,
		QuestionCount:   len(e.Questions),
	}
}

// Paper builds the student-facing exam paper.
func (e *Exam) Paper() ExamPaper {
	qs := make([]QuestionForStudent, len(e.Questions))
	for i, q := range e.Questions {
		qs[i] = QuestionForStudent{
			ID:          q.ID,
			Text:        q.Text,
			Image:       q.Image,
			Options:     q.Options,
			Marks:       q.Marks,
			MultiSelect: q.IsMultiSelect(),
			OrderNum:    i,
		}
	}
	return ExamPaper{
		ExamID:    e.ID,
		Title:     e.Title,
		Duration:  e.DurationMinutes,
		Questions: qs,
	}
}
