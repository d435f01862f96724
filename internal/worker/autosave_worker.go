package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
)

// AutosaveWorker consumes persist_answers_queue and mirrors in-progress
// selections into student_answers for the live monitor.
type AutosaveWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]*model.AnswerSnapshot, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 && (len(batch) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flush(drainCtx, batch)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
		}

		// BLPop blocks until an item is available or the poll timeout passes.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("BLPop error")
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		snap, err := decodeSnapshot([]byte(result[1]))
		if err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed answer snapshot")
			continue
		}
		batch = append(batch, snap)
	}
}

func decodeSnapshot(raw []byte) (*model.AnswerSnapshot, error) {
	var s model.AnswerSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if s.ExamID == uuid.Nil || s.QuestionID == uuid.Nil || s.StudentID <= 0 {
		return nil, errors.New("answer snapshot without exam, question or student")
	}
	if s.Selected == nil {
		s.Selected = []string{}
	}
	return &s, nil
}

// latestSnapshots keeps the newest snapshot per (exam, student, question).
func latestSnapshots(batch []*model.AnswerSnapshot) []*model.AnswerSnapshot {
	type key struct {
		exam     uuid.UUID
		student  int
		question uuid.UUID
	}
	idx := make(map[key]int, len(batch))
	out := make([]*model.AnswerSnapshot, 0, len(batch))
	for _, s := range batch {
		k := key{s.ExamID, s.StudentID, s.QuestionID}
		if i, ok := idx[k]; ok {
			if !s.UpdatedAt.Before(out[i].UpdatedAt) {
				out[i] = s
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, s)
	}
	return out
}

// flush upserts the batch in one round trip. Older snapshots never overwrite newer rows.
func (w *AutosaveWorker) flush(ctx context.Context, batch []*model.AnswerSnapshot) {
	if len(batch) == 0 {
		return
	}
	snaps := latestSnapshots(batch)

	b := &pgx.Batch{}
	for _, s := range snaps {
		b.Queue(
			`INSERT INTO student_answers (exam_id, student_id, question_id, selected, updated_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (exam_id, student_id, question_id) DO UPDATE
			 SET selected = EXCLUDED.selected, updated_at = EXCLUDED.updated_at
			 WHERE student_answers.updated_at <= EXCLUDED.updated_at`,
			s.ExamID, s.StudentID, s.QuestionID, s.Selected, s.UpdatedAt,
		)
	}

	if err := w.pool.SendBatch(ctx, b).Close(); err != nil {
		w.log.Error().Err(err).Int("count", len(snaps)).Msg("Persist error, requeueing")
		requeue(ctx, w.rdb, w.log, config.WorkerKey.PersistAnswersQueue, snaps)
	}
}

// drain persists whatever is still queued before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	items, err := w.rdb.LPopCount(ctx, config.WorkerKey.PersistAnswersQueue, BatchSize*10).Result()
	if err != nil || len(items) == 0 {
		return
	}

	batch := make([]*model.AnswerSnapshot, 0, len(items))
	for _, raw := range items {
		snap, err := decodeSnapshot([]byte(raw))
		if err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}
		batch = append(batch, snap)
	}
	w.flush(ctx, batch)
	w.log.Info().Int("count", len(batch)).Msg("Drained remaining items")
}
