package session

import (
	"testing"

	"github.com/stemsi/exam-portal/internal/model"
)

func TestScoreExactSet(t *testing.T) {
	exam := testExam()
	multi := exam.Questions[1:2] // correct = {o1, o3}, 3 marks

	tests := []struct {
		name     string
		selected []string
		want     int
	}{
		{name: "exact set", selected: []string{"o1", "o3"}, want: 3},
		{name: "order does not matter", selected: []string{"o3", "o1"}, want: 3},
		{name: "duplicates collapse", selected: []string{"o1", "o3", "o1"}, want: 3},
		{name: "subset", selected: []string{"o1"}, want: 0},
		{name: "superset", selected: []string{"o1", "o2", "o3"}, want: 0},
		{name: "disjoint", selected: []string{"o2"}, want: 0},
		{name: "empty selection", selected: []string{}, want: 0},
		{name: "unanswered", selected: nil, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			answers := Answers{}
			if tc.selected != nil {
				answers[qMulti] = tc.selected
			}
			got := Score(multi, answers)
			if got.Score != tc.want {
				t.Errorf("Score = %d, want %d", got.Score, tc.want)
			}
			if got.TotalMarks != 3 {
				t.Errorf("TotalMarks = %d, want 3", got.TotalMarks)
			}
		})
	}
}

func TestScoreWholeExam(t *testing.T) {
	exam := testExam()
	answers := Answers{
		qSingle: {"o2"},
		qMulti:  {"o1"},
		qLast:   {"o1"},
	}

	res := Score(exam.Questions, answers)

	if res.Score != 3 {
		t.Errorf("Score = %d, want 3", res.Score)
	}
	if res.TotalMarks != 6 {
		t.Errorf("TotalMarks = %d, want 6", res.TotalMarks)
	}
	if len(res.PerQuestion) != 3 {
		t.Fatalf("PerQuestion has %d entries, want 3", len(res.PerQuestion))
	}
	if res.PerQuestion[1].Correct || res.PerQuestion[1].Awarded != 0 {
		t.Errorf("multi-select partial answer graded %+v, want no credit", res.PerQuestion[1])
	}

	wantChapters := map[string]model.Performance{
		"Geography": {Score: 2, Total: 2},
		"Art":       {Score: 0, Total: 3},
		"Science":   {Score: 1, Total: 1},
	}
	for k, want := range wantChapters {
		if got := res.ChapterPerformance[k]; got != want {
			t.Errorf("ChapterPerformance[%q] = %+v, want %+v", k, got, want)
		}
	}

	wantCOs := map[string]model.Performance{
		"CO1": {Score: 3, Total: 3},
		"CO2": {Score: 0, Total: 3},
	}
	for k, want := range wantCOs {
		if got := res.COPerformance[k]; got != want {
			t.Errorf("COPerformance[%q] = %+v, want %+v", k, got, want)
		}
	}
}

func TestScoreIgnoresAnswersForUnknownQuestions(t *testing.T) {
	exam := testExam()
	answers := Answers{
		qSingle:          {"o2"},
		exam.ID: {"o1"},
	}
	if got := Score(exam.Questions, answers).Score; got != 2 {
		t.Errorf("Score = %d, want 2", got)
	}
}
