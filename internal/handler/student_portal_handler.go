package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/middleware"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
	"github.com/stemsi/exam-portal/internal/session"
	"github.com/stemsi/exam-portal/internal/validator"
)

// StudentPortalHandler handles student-facing endpoints (exam lookup, paper, results).
type StudentPortalHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(sessionService *service.ExamSessionService, log zerolog.Logger) *StudentPortalHandler {
	return &StudentPortalHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "student_portal_handler").Logger(),
	}
}

func identityOf(claims *service.Claims) session.Identity {
	return session.Identity{StudentID: claims.UserID, Name: claims.Name}
}

// studentExam resolves the caller and the :exam_id path parameter, writing the
// failure response itself when either is missing.
func studentExam(c *gin.Context) (session.Identity, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return session.Identity{}, uuid.Nil, false
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return session.Identity{}, uuid.Nil, false
	}
	return identityOf(claims), examID, true
}

func (h *StudentPortalHandler) fail(c *gin.Context, err error) {
	status, code := sessionErrorCode(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Student request failed")
	}
	response.Fail(c, status, code)
}

// LookupExam godoc
// POST /api/v1/student/exams/lookup
// Finds an active exam by its secret code. Rejects exams the student already attempted.
func (h *StudentPortalHandler) LookupExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.LookupExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	summary, err := h.sessionService.LookupByCode(c.Request.Context(), req.SecretCode, claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": summary})
}

// GetExamPaper godoc
// GET /api/v1/student/exams/:exam_id/paper
// Opens (or reuses) the student's session and returns the paper without answers.
func (h *StudentPortalHandler) GetExamPaper(c *gin.Context) {
	student, examID, ok := studentExam(c)
	if !ok {
		return
	}

	paper, err := h.sessionService.Paper(c.Request.Context(), examID, student)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, paper)
}

// StartExam godoc
// POST /api/v1/student/exams/:exam_id/start
// Registers roll number and phone and starts the countdown.
func (h *StudentPortalHandler) StartExam(c *gin.Context) {
	student, examID, ok := studentExam(c)
	if !ok {
		return
	}

	var req model.RegisterRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ls, err := h.sessionService.Open(c.Request.Context(), examID, student)
	if err != nil {
		h.fail(c, err)
		return
	}

	reg := session.Registration{RollNumber: req.RollNumber, Phone: req.Phone}
	if err := h.sessionService.Start(c.Request.Context(), ls, student, reg); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, service.StateOf(ls))
}

// GetExamState godoc
// GET /api/v1/student/exams/:exam_id/state
// Returns answers, remaining time and violations so a reloaded client can pick up.
func (h *StudentPortalHandler) GetExamState(c *gin.Context) {
	student, examID, ok := studentExam(c)
	if !ok {
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), examID, student)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// ListSubmissions godoc
// GET /api/v1/student/submissions
// Lists the student's own attempts. Scores and feedback appear once released.
func (h *StudentPortalHandler) ListSubmissions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	subs, err := h.sessionService.ListSubmissions(c.Request.Context(), claims.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if subs == nil {
		subs = []model.SubmissionView{}
	}

	response.Success(c, http.StatusOK, gin.H{"submissions": subs})
}

// GetLeaderboard godoc
// GET /api/v1/student/exams/:exam_id/leaderboard
// Returns the top scores once the teacher released the leaderboard.
func (h *StudentPortalHandler) GetLeaderboard(c *gin.Context) {
	_, examID, ok := studentExam(c)
	if !ok {
		return
	}

	entries, err := h.sessionService.Leaderboard(c.Request.Context(), examID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}

	response.Success(c, http.StatusOK, gin.H{"leaderboard": entries})
}
