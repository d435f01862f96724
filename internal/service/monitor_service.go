package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exam-portal/internal/repository"
)

// ProgressStore is the slice of the monitor repository the service reads.
type ProgressStore interface {
	ListParticipants(ctx context.Context, examID uuid.UUID) ([]repository.Participant, error)
	GetAnsweredCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error)
	GetViolationCounts(ctx context.Context, examID uuid.UUID) (map[int]int64, error)
}

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	monitorRepo ProgressStore
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo ProgressStore) *MonitorService {
	return &MonitorService{monitorRepo: monitorRepo}
}

// StudentProgressSnapshot holds answered and violation counts per student.
type StudentProgressSnapshot struct {
	AnsweredCounts  map[int]int64 // student_id → answered questions
	ViolationCounts map[int]int64 // student_id → highest violation count
	TotalViolations int64
}

// GetStudentProgress returns answered counts and violation counts concurrently.
func (s *MonitorService) GetStudentProgress(ctx context.Context, examID uuid.UUID) (*StudentProgressSnapshot, error) {
	snapshot := &StudentProgressSnapshot{
		AnsweredCounts:  make(map[int]int64),
		ViolationCounts: make(map[int]int64),
	}

	var (
		answeredCounts  map[int]int64
		violationCounts map[int]int64
		answeredErr     error
		violationErr    error
		wg              sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		answeredCounts, answeredErr = s.monitorRepo.GetAnsweredCounts(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		violationCounts, violationErr = s.monitorRepo.GetViolationCounts(ctx, examID)
	}()
	wg.Wait()

	// Answered counts are critical; violation counts are best-effort
	if answeredErr != nil {
		return nil, answeredErr
	}
	if answeredCounts != nil {
		snapshot.AnsweredCounts = answeredCounts
	}
	if violationErr == nil && violationCounts != nil {
		snapshot.ViolationCounts = violationCounts
		for _, count := range violationCounts {
			snapshot.TotalViolations += count
		}
	}

	return snapshot, nil
}

// StudentStatus is one row of the monitor snapshot.
type StudentStatus struct {
	repository.Participant
	AnsweredCount  int64 `json:"answered_count"`
	ViolationCount int64 `json:"violation_count"`
}

// ExamSnapshot is the first event a teacher receives when attaching to the monitor.
type ExamSnapshot struct {
	Students        []StudentStatus `json:"students"`
	TotalJoined     int             `json:"total_joined"`
	TotalSubmitted  int             `json:"total_submitted"`
	TotalViolations int64           `json:"total_violations"`
}

// GetSnapshot merges participants with their progress.
func (s *MonitorService) GetSnapshot(ctx context.Context, examID uuid.UUID) (*ExamSnapshot, error) {
	participants, err := s.monitorRepo.ListParticipants(ctx, examID)
	if err != nil {
		return nil, err
	}
	progress, err := s.GetStudentProgress(ctx, examID)
	if err != nil {
		return nil, err
	}

	snap := &ExamSnapshot{
		Students:        make([]StudentStatus, 0, len(participants)),
		TotalJoined:     len(participants),
		TotalViolations: progress.TotalViolations,
	}
	for _, p := range participants {
		if p.Submitted {
			snap.TotalSubmitted++
		}
		snap.Students = append(snap.Students, StudentStatus{
			Participant:    p,
			AnsweredCount:  progress.AnsweredCounts[p.StudentID],
			ViolationCount: progress.ViolationCounts[p.StudentID],
		})
	}
	return snap, nil
}
