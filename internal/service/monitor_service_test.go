package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exam-portal/internal/repository"
)

type stubProgress struct {
	participants []repository.Participant
	answered     map[int]int64
	violations   map[int]int64
	answeredErr  error
	violationErr error
}

func (s stubProgress) ListParticipants(context.Context, uuid.UUID) ([]repository.Participant, error) {
	return s.participants, nil
}

func (s stubProgress) GetAnsweredCounts(context.Context, uuid.UUID) (map[int]int64, error) {
	return s.answered, s.answeredErr
}

func (s stubProgress) GetViolationCounts(context.Context, uuid.UUID) (map[int]int64, error) {
	return s.violations, s.violationErr
}

func TestGetSnapshot(t *testing.T) {
	store := stubProgress{
		participants: []repository.Participant{
			{StudentID: 1, Name: "Ayu Lestari", Submitted: true, AutoSubmitted: true},
			{StudentID: 2, Name: "Budi Santoso"},
		},
		answered:   map[int]int64{1: 3, 2: 1},
		violations: map[int]int64{1: 3},
	}

	snap, err := NewMonitorService(store).GetSnapshot(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.TotalJoined != 2 || snap.TotalSubmitted != 1 || snap.TotalViolations != 3 {
		t.Errorf("totals = %+v", snap)
	}
	if snap.Students[1].AnsweredCount != 1 || snap.Students[1].ViolationCount != 0 {
		t.Errorf("second student = %+v", snap.Students[1])
	}
}

func TestGetStudentProgressViolationsBestEffort(t *testing.T) {
	tests := []struct {
		name    string
		store   stubProgress
		wantErr bool
		wantVio int64
	}{
		{
			name:    "both queries succeed",
			store:   stubProgress{answered: map[int]int64{1: 2}, violations: map[int]int64{1: 2, 2: 1}},
			wantVio: 3,
		},
		{
			name:  "violation query fails",
			store: stubProgress{answered: map[int]int64{1: 2}, violationErr: errors.New("timeout")},
		},
		{
			name:    "answered query fails",
			store:   stubProgress{answeredErr: errors.New("timeout")},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewMonitorService(tc.store).GetStudentProgress(context.Background(), uuid.New())
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.TotalViolations != tc.wantVio {
				t.Errorf("total violations = %d, want %d", got.TotalViolations, tc.wantVio)
			}
		})
	}
}
