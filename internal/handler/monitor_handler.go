package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/middleware"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

type MonitorHandler struct {
	rdb            *redis.Client
	examService    *service.ExamService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(
	rdb *redis.Client,
	examService *service.ExamService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		examService:    examService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/teacher/exams/:id/monitor
// Streams a snapshot of participants followed by live joined, answered,
// violation and submitted events. Scores are never part of the stream.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, err := h.examService.GetForAuthor(c.Request.Context(), examID, claims.UserID, claims.Role)
	if err != nil {
		status, code := sessionErrorCode(err)
		response.Fail(c, status, code)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	totalQuestions := len(exam.Questions)
	h.sendSnapshot(c, reqCtx, exam, totalQuestions)

	// Subscribe after the snapshot so a teacher never sees an event twice;
	// anything missed in between shows up in the next refresh.
	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	h.log.Info().Str("exam_id", examID.String()).Int("user_id", claims.UserID).Msg("Teacher attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Teacher disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Events are already JSON; forward them untouched.
			writeSSEData(c, []byte(msg.Payload))

		case <-refreshTicker.C:
			h.sendRefresh(c, reqCtx, examID, totalQuestions)

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

func writeSSEData(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, parentCtx context.Context, exam *model.Exam, totalQuestions int) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	snap, err := h.monitorService.GetSnapshot(ctx, exam.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to build monitor snapshot")
		snap = &service.ExamSnapshot{Students: []service.StudentStatus{}}
	}

	c.SSEvent("message", gin.H{
		"type": "snapshot",
		"data": gin.H{
			"exam": gin.H{
				"id":              exam.ID.String(),
				"title":           exam.Title,
				"duration":        exam.DurationMinutes,
				"total_questions": totalQuestions,
			},
			"stats": gin.H{
				"total_joined":     snap.TotalJoined,
				"total_submitted":  snap.TotalSubmitted,
				"total_violations": snap.TotalViolations,
			},
			"students": snap.Students,
		},
	})
	c.Writer.Flush()
}

// sendRefresh polls current progress and sends a compact refresh event.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, examID uuid.UUID, totalQuestions int) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	progress, err := h.monitorService.GetStudentProgress(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to fetch student progress for refresh")
		return
	}
	if len(progress.AnsweredCounts) == 0 && len(progress.ViolationCounts) == 0 {
		return
	}

	// Single-pass merge: answered counts first, then violation-only students.
	students := make([]gin.H, 0, len(progress.AnsweredCounts)+len(progress.ViolationCounts))
	for sid, answered := range progress.AnsweredCounts {
		students = append(students, gin.H{
			"student_id":      sid,
			"answered_count":  answered,
			"violation_count": progress.ViolationCounts[sid],
		})
		delete(progress.ViolationCounts, sid)
	}
	for sid, violations := range progress.ViolationCounts {
		students = append(students, gin.H{
			"student_id":      sid,
			"answered_count":  int64(0),
			"violation_count": violations,
		})
	}

	c.SSEvent("message", gin.H{
		"type":             "refresh",
		"total_questions":  totalQuestions,
		"total_violations": progress.TotalViolations,
		"students":         students,
	})
	c.Writer.Flush()
}
