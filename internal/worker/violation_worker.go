package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationWorker consumes persist_violations_queue and appends to exam_violations.
type ViolationWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "violation_worker").Logger(),
	}
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]*model.Violation, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		v, err := decodeViolation([]byte(result[1]))
		if err != nil {
			// Malformed payloads cannot succeed on retry.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed violation")
			continue
		}

		buffer = append(buffer, v)
	}
}

func decodeViolation(raw []byte) (*model.Violation, error) {
	var v model.Violation
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	if v.StudentID <= 0 || v.Count <= 0 {
		return nil, errors.New("violation without student or count")
	}
	switch v.Kind {
	case model.ViolationHidden, model.ViolationBlur:
	default:
		return nil, errors.New("unknown violation kind")
	}
	if v.RecordedAt.IsZero() {
		v.RecordedAt = time.Now()
	}
	return &v, nil
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*model.Violation) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ViolationWorker) bulkInsert(ctx context.Context, batch []*model.Violation) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []interface{}{v.ExamID, v.StudentID, string(v.Kind), v.Count, v.RecordedAt})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"exam_violations"},
		[]string{"exam_id", "student_id", "kind", "count", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []*model.Violation) {
	requeueList := make([]*model.Violation, 0)

	for _, v := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO exam_violations (exam_id, student_id, kind, count, recorded_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			v.ExamID, v.StudentID, string(v.Kind), v.Count, v.RecordedAt,
		)
		if err != nil {
			w.log.Error().Err(err).Int("student_id", v.StudentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, v)
		}
	}

	if len(requeueList) > 0 {
		requeue(ctx, w.rdb, w.log, config.WorkerKey.PersistViolationsQueue, requeueList)
	}
}

func (w *ViolationWorker) shutdown(buffer []*model.Violation) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

// requeue pushes failed items back onto their queue in one pipeline.
func requeue[T any](ctx context.Context, rdb *redis.Client, log zerolog.Logger, queue string, items []T) {
	pipe := rdb.Pipeline()
	for _, item := range items {
		data, _ := json.Marshal(item)
		pipe.RPush(ctx, queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("queue", queue).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	log.Info().Str("queue", queue).Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Back off so a database outage does not turn into a hot loop.
	time.Sleep(2 * time.Second)
}
