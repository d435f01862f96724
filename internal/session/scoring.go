package session

import (
	"slices"

	"github.com/google/uuid"
	"github.com/stemsi/exam-portal/internal/model"
)

// QuestionResult is the grading of one question.
type QuestionResult struct {
	QuestionID uuid.UUID
	Selected   []string
	Correct    bool
	Marks      int
	Awarded    int
}

// Result is the grading of a whole answer record.
type Result struct {
	Score              int
	TotalMarks         int
	PerQuestion        []QuestionResult
	ChapterPerformance map[string]model.Performance
	COPerformance      map[string]model.Performance
}

// Score grades answers against questions with exact-set matching: a question earns
// its marks only when the selected set equals the correct set. No partial credit.
func Score(questions []model.Question, answers Answers) Result {
	res := Result{
		PerQuestion:        make([]QuestionResult, 0, len(questions)),
		ChapterPerformance: make(map[string]model.Performance),
		COPerformance:      make(map[string]model.Performance),
	}

	for _, q := range questions {
		selected := answers[q.ID]
		qr := QuestionResult{
			QuestionID: q.ID,
			Selected:   slices.Clone(selected),
			Correct:    sameSet(selected, q.CorrectAnswers),
			Marks:      q.Marks,
		}
		if qr.Correct {
			qr.Awarded = q.Marks
		}

		res.Score += qr.Awarded
		res.TotalMarks += q.Marks
		res.PerQuestion = append(res.PerQuestion, qr)

		if q.ChapterName != "" {
			addPerformance(res.ChapterPerformance, q.ChapterName, qr)
		}
		if q.CONumber != "" {
			addPerformance(res.COPerformance, q.CONumber, qr)
		}
	}
	return res
}

func addPerformance(m map[string]model.Performance, key string, qr QuestionResult) {
	p := m[key]
	p.Score += qr.Awarded
	p.Total += qr.Marks
	m[key] = p
}

// sameSet compares a and b as sets. An empty selection never matches.
func sameSet(a, b []string) bool {
	as := toSet(a)
	bs := toSet(b)
	if len(as) == 0 || len(as) != len(bs) {
		return false
	}
	for k := range as {
		if _, ok := bs[k]; !ok {
			return false
		}
	}
	return true
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
