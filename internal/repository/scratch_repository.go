package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/session"
)

// ScratchRepository keeps in-progress answers and session start records in Redis.
// It is a recovery aid only; exam_results is the system of record.
type ScratchRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewScratchRepository creates a new ScratchRepository. Keys expire after ttl.
func NewScratchRepository(rdb *redis.Client, ttl time.Duration) *ScratchRepository {
	return &ScratchRepository{rdb: rdb, ttl: ttl}
}

// Get returns session.ErrScratchMiss when the key does not exist.
func (r *ScratchRepository) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrScratchMiss
	}
	return val, err
}

func (r *ScratchRepository) Set(ctx context.Context, key string, value []byte) error {
	return r.rdb.Set(ctx, key, value, r.ttl).Err()
}

func (r *ScratchRepository) Remove(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// StartRecord is what survives a server restart about a running session.
type StartRecord struct {
	StartedAt  time.Time
	RollNumber string
	Phone      string
}

// SaveStart stores when the student started the exam and what they registered with.
func (r *ScratchRepository) SaveStart(ctx context.Context, examID uuid.UUID, studentID int, rec StartRecord) error {
	key := config.CacheKey.StudentExamSessionStartKey(examID.String(), studentID)
	return r.rdb.HSet(ctx, key,
		"started_at", rec.StartedAt.Unix(),
		"roll_number", rec.RollNumber,
		"phone", rec.Phone,
	).Err()
}

// GetStart returns the start record, or nil when the student never started.
func (r *ScratchRepository) GetStart(ctx context.Context, examID uuid.UUID, studentID int) (*StartRecord, error) {
	key := config.CacheKey.StudentExamSessionStartKey(examID.String(), studentID)
	vals, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}

	unix, err := strconv.ParseInt(vals["started_at"], 10, 64)
	if err != nil {
		return nil, errors.New("invalid session start record")
	}
	return &StartRecord{
		StartedAt:  time.Unix(unix, 0),
		RollNumber: vals["roll_number"],
		Phone:      vals["phone"],
	}, nil
}

// ExpireStart lets the start record age out once the attempt is stored.
func (r *ScratchRepository) ExpireStart(ctx context.Context, examID uuid.UUID, studentID int) error {
	key := config.CacheKey.StudentExamSessionStartKey(examID.String(), studentID)
	return r.rdb.Expire(ctx, key, time.Hour).Err()
}
