package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/model"
)

// LeaderboardWorker consumes persist_leaderboard_queue and upserts leaderboard rows.
type LeaderboardWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewLeaderboardWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *LeaderboardWorker {
	return &LeaderboardWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "leaderboard_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *LeaderboardWorker) Start(ctx context.Context) {
	w.log.Info().Msg("LeaderboardWorker started")

	batch := make([]*model.LeaderboardEntry, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistLeaderboardQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
					time.Sleep(time.Second)
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var e model.LeaderboardEntry
			if err := json.Unmarshal([]byte(item[1]), &e); err != nil || e.ExamID == uuid.Nil || e.UserID <= 0 {
				w.log.Error().Err(err).Str("data", item[1]).Msg("Invalid leaderboard payload")
				continue
			}

			batch = append(batch, &e)
		}
	}
}

func (w *LeaderboardWorker) flushSafe(ctx context.Context, batch []*model.LeaderboardEntry) {
	if len(batch) == 0 {
		return
	}
	batch = dedupeEntries(batch)

	if err := w.bulkUpsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk leaderboard upsert failed, using fallback")

		failed := make([]*model.LeaderboardEntry, 0)
		for _, e := range batch {
			if err := w.upsertSingle(ctx, e); err != nil {
				w.log.Error().Err(err).Int("user_id", e.UserID).Msg("Leaderboard upsert failed, requeueing")
				failed = append(failed, e)
			}
		}
		if len(failed) > 0 {
			requeue(ctx, w.rdb, w.log, config.WorkerKey.PersistLeaderboardQueue, failed)
		}
	}
}

// dedupeEntries keeps the newest entry per (exam, user); one UPSERT statement
// cannot touch the same row twice.
func dedupeEntries(batch []*model.LeaderboardEntry) []*model.LeaderboardEntry {
	type key struct {
		exam uuid.UUID
		user int
	}
	idx := make(map[key]int, len(batch))
	out := make([]*model.LeaderboardEntry, 0, len(batch))
	for _, e := range batch {
		k := key{e.ExamID, e.UserID}
		if i, ok := idx[k]; ok {
			if !e.CreatedAt.Before(out[i].CreatedAt) {
				out[i] = e
			}
			continue
		}
		idx[k] = len(out)
		out = append(out, e)
	}
	return out
}

// ----------------------------------------------------------------
// BULK PostgreSQL UPSERT using UNNEST
// ----------------------------------------------------------------

func (w *LeaderboardWorker) bulkUpsert(ctx context.Context, batch []*model.LeaderboardEntry) error {
	n := len(batch)
	examIDs := make([]uuid.UUID, 0, n)
	users := make([]int, 0, n)
	names := make([]string, 0, n)
	scores := make([]int, 0, n)
	createdAts := make([]time.Time, 0, n)

	for _, e := range batch {
		examIDs = append(examIDs, e.ExamID)
		users = append(users, e.UserID)
		names = append(names, e.StudentName)
		scores = append(scores, e.Score)
		createdAts = append(createdAts, e.CreatedAt)
	}

	query := `
		INSERT INTO leaderboard (exam_id, user_id, student_name, score, created_at)
		SELECT u.exam_id, u.user_id, u.student_name, u.score, u.created_at
		FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::text[],
			$4::int[],
			$5::timestamptz[]
		) AS u (exam_id, user_id, student_name, score, created_at)
		ON CONFLICT (exam_id, user_id) DO UPDATE
		SET student_name = EXCLUDED.student_name,
		    score = EXCLUDED.score,
		    created_at = EXCLUDED.created_at
	`

	_, err := w.pool.Exec(ctx, query, examIDs, users, names, scores, createdAts)
	return err
}

// ----------------------------------------------------------------
// FALLBACK single upsert
// ----------------------------------------------------------------

func (w *LeaderboardWorker) upsertSingle(ctx context.Context, e *model.LeaderboardEntry) error {
	_, err := w.pool.Exec(ctx,
		`INSERT INTO leaderboard (exam_id, user_id, student_name, score, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (exam_id, user_id) DO UPDATE
		 SET student_name = EXCLUDED.student_name, score = EXCLUDED.score, created_at = EXCLUDED.created_at`,
		e.ExamID, e.UserID, e.StudentName, e.Score, e.CreatedAt,
	)
	return err
}
