package worker

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exam-portal/internal/model"
)

func TestDecodeSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid",
			raw:  `{"exam_id":"aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa","student_id":42,"question_id":"11111111-1111-1111-1111-111111111111","selected":["o1"],"updated_at":"2025-03-01T09:00:00Z"}`,
		},
		{
			name: "cleared selection",
			raw:  `{"exam_id":"aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa","student_id":42,"question_id":"11111111-1111-1111-1111-111111111111","selected":null}`,
		},
		{name: "missing question", raw: `{"exam_id":"aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa","student_id":42}`, wantErr: true},
		{name: "bad json", raw: `{"exam_id":`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap, err := decodeSnapshot([]byte(tc.raw))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && snap.Selected == nil {
				t.Error("selected must never be nil")
			}
		})
	}
}

func TestLatestSnapshots(t *testing.T) {
	exam, q1, q2 := uuid.New(), uuid.New(), uuid.New()
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	batch := []*model.AnswerSnapshot{
		{ExamID: exam, StudentID: 1, QuestionID: q1, Selected: []string{"o1"}, UpdatedAt: t0},
		{ExamID: exam, StudentID: 1, QuestionID: q2, Selected: []string{"o2"}, UpdatedAt: t0},
		{ExamID: exam, StudentID: 1, QuestionID: q1, Selected: []string{"o3"}, UpdatedAt: t0.Add(time.Second)},
		{ExamID: exam, StudentID: 1, QuestionID: q1, Selected: []string{"o2"}, UpdatedAt: t0.Add(-time.Second)},
		{ExamID: exam, StudentID: 2, QuestionID: q1, Selected: []string{"o1"}, UpdatedAt: t0},
	}

	got := latestSnapshots(batch)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if !slices.Equal(got[0].Selected, []string{"o3"}) {
		t.Errorf("student 1 q1 = %v, want newest [o3]", got[0].Selected)
	}
}

func TestDecodeViolation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "hidden", raw: `{"exam_id":"aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa","student_id":42,"kind":"hidden","count":1,"recorded_at":"2025-03-01T09:00:00Z"}`},
		{name: "blur without timestamp", raw: `{"exam_id":"aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa","student_id":42,"kind":"blur","count":2}`},
		{name: "unknown kind", raw: `{"student_id":42,"kind":"resize","count":1}`, wantErr: true},
		{name: "zero count", raw: `{"student_id":42,"kind":"blur","count":0}`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := decodeViolation([]byte(tc.raw))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && v.RecordedAt.IsZero() {
				t.Error("recorded_at must be filled")
			}
		})
	}
}

func TestDedupeEntries(t *testing.T) {
	exam := uuid.New()
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	got := dedupeEntries([]*model.LeaderboardEntry{
		{ExamID: exam, UserID: 1, Score: 3, CreatedAt: t0},
		{ExamID: exam, UserID: 2, Score: 5, CreatedAt: t0},
		{ExamID: exam, UserID: 1, Score: 4, CreatedAt: t0.Add(time.Minute)},
	})
	if len(got) != 2 || got[0].Score != 4 {
		t.Errorf("dedupe = %+v", got)
	}
}
