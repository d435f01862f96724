package session

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/model"
)

// Answers maps a question to its selected option ids.
type Answers map[uuid.UUID][]string

// Clone returns a deep copy.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for q, sel := range a {
		out[q] = slices.Clone(sel)
	}
	return out
}

// Keyed converts the answers to string keys for JSON clients.
func (a Answers) Keyed() map[string][]string {
	out := make(map[string][]string, len(a))
	for q, sel := range a {
		out[q.String()] = slices.Clone(sel)
	}
	return out
}

// ScratchStore is a device-scoped key-value slot used only for crash recovery.
type ScratchStore interface {
	// Get returns ErrScratchMiss when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

type scratchRecord struct {
	Answers   Answers   `json:"answers"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnswerStore holds the in-progress answer record and writes it through to scratch.
type AnswerStore struct {
	store ScratchStore
	key   string
	clock Clock
	log   zerolog.Logger

	mu        sync.Mutex
	answers   Answers
	updatedAt time.Time
}

func NewAnswerStore(store ScratchStore, key string, clock Clock, log zerolog.Logger) *AnswerStore {
	return &AnswerStore{
		store:   store,
		key:     key,
		clock:   clock,
		log:     log,
		answers: make(Answers),
	}
}

// Select applies the selection rule of q and persists the record.
// Single choice replaces the selection, multi-select toggles optionID.
func (s *AnswerStore) Select(ctx context.Context, q *model.Question, optionID string) []string {
	s.mu.Lock()
	cur := s.answers[q.ID]
	var next []string
	if q.IsMultiSelect() {
		if i := slices.Index(cur, optionID); i >= 0 {
			next = slices.Delete(slices.Clone(cur), i, i+1)
		} else {
			next = append(slices.Clone(cur), optionID)
		}
	} else {
		next = []string{optionID}
	}
	s.answers[q.ID] = next
	s.updatedAt = s.clock.Now()
	s.mu.Unlock()

	if err := s.Persist(ctx); err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Msg("Failed to persist scratch answers")
	}
	return slices.Clone(next)
}

// Current returns a copy of the whole record.
func (s *AnswerStore) Current() Answers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Clone()
}

// Persist writes the record to the scratch slot.
func (s *AnswerStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	payload, err := json.Marshal(scratchRecord{Answers: s.answers, UpdatedAt: s.updatedAt})
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.store.Set(ctx, s.key, payload)
}

// Restore loads a previous attempt from the scratch slot.
// A missing or unreadable slot leaves the record empty and reports false.
func (s *AnswerStore) Restore(ctx context.Context) bool {
	rec, ok := s.read(ctx)
	if !ok {
		return false
	}
	s.mu.Lock()
	s.answers = rec.Answers
	s.updatedAt = rec.UpdatedAt
	s.mu.Unlock()
	return true
}

// Reconcile adopts the scratch copy when it is newer than memory and returns the result.
func (s *AnswerStore) Reconcile(ctx context.Context) Answers {
	rec, ok := s.read(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if ok && rec.UpdatedAt.After(s.updatedAt) {
		s.log.Info().Str("key", s.key).Msg("Adopting newer scratch answers")
		s.answers = rec.Answers
		s.updatedAt = rec.UpdatedAt
	}
	return s.answers.Clone()
}

// Clear removes the scratch slot. Memory is kept for the submission already built.
func (s *AnswerStore) Clear(ctx context.Context) error {
	return s.store.Remove(ctx, s.key)
}

func (s *AnswerStore) read(ctx context.Context) (scratchRecord, bool) {
	raw, err := s.store.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, ErrScratchMiss) {
			s.log.Warn().Err(err).Str("key", s.key).Msg("Scratch slot unreadable, starting empty")
		}
		return scratchRecord{}, false
	}

	var rec scratchRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.log.Warn().Err(err).Str("key", s.key).Msg("Scratch slot corrupt, starting empty")
		return scratchRecord{}, false
	}
	if rec.Answers == nil {
		rec.Answers = make(Answers)
	}
	return rec, true
}
