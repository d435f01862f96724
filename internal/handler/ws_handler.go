package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/i18n"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
	"github.com/stemsi/exam-portal/internal/session"
	ws "github.com/stemsi/exam-portal/internal/websocket"
)

// actionTimeout bounds the storage work a single client action may trigger.
const actionTimeout = 15 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the student's exam stream.
type WSHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// streamConn is one connected client and the live session it drives.
type streamConn struct {
	ls      *service.LiveSession
	student session.Identity
	p       *wsPresenter
	log     zerolog.Logger
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Carries registration, answer selection, navigation, integrity signals and
// submit for one student session. Notices flow back on the same socket.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	student, examID, ok := studentExam(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", student.StudentID).
		Str("exam_id", examID.String()).
		Logger()

	// Localized messages follow the language negotiated on the upgrade request.
	locCtx := i18n.WithLocalizer(context.Background(), i18n.FromContext(c.Request.Context()))

	openCtx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	ls, err := h.sessionService.Open(openCtx, examID, student)
	cancel()
	if err != nil {
		_, code := sessionErrorCode(err)
		if code == response.ErrInternal {
			wsLog.Error().Err(err).Msg("Failed to open exam session")
		}
		ws.WriteError(conn, string(code), response.Localize(locCtx, code))
		return
	}

	sc := &streamConn{
		ls:      ls,
		student: student,
		p:       newWSPresenter(locCtx, conn, ls.SubmissionID(), wsLog),
		log:     wsLog,
	}
	ls.Attach(sc.p)
	defer func() {
		ls.Detach(sc.p)
		h.sessionService.Evict(examID, student.StudentID)
	}()

	wsLog.Info().Msg("Student connected")
	sc.p.send(ws.StateResponse{Event: ws.EventState, State: service.StateOf(ls)})

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		h.dispatch(sc, &msg)
	}
}

func (h *WSHandler) dispatch(sc *streamConn, msg *ws.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	switch msg.Action {
	case ws.ActionRegister:
		reg := session.Registration{
			RollNumber: strings.TrimSpace(msg.RollNumber),
			Phone:      strings.TrimSpace(msg.Phone),
		}
		if err := h.sessionService.Start(ctx, sc.ls, sc.student, reg); err != nil {
			sc.fail(err)
			return
		}
		sc.p.send(ws.StateResponse{Event: ws.EventState, State: service.StateOf(sc.ls)})

	case ws.ActionSelect:
		qID, err := uuid.Parse(msg.QuestionID)
		if err != nil {
			sc.fail(session.ErrUnknownQuestion)
			return
		}
		selected, err := sc.ls.Select(ctx, qID, msg.OptionID)
		if err != nil {
			sc.fail(err)
			return
		}
		sc.p.send(ws.SelectionResponse{Event: ws.EventSelection, QuestionID: qID.String(), Selected: selected})

	case ws.ActionNext:
		sc.p.send(ws.NavigatedResponse{Event: ws.EventNavigated, Index: sc.ls.Next()})
	case ws.ActionPrev:
		sc.p.send(ws.NavigatedResponse{Event: ws.EventNavigated, Index: sc.ls.Previous()})
	case ws.ActionGoto:
		sc.p.send(ws.NavigatedResponse{Event: ws.EventNavigated, Index: sc.ls.Goto(msg.Index)})

	case ws.ActionHidden:
		sc.ls.Signals.EmitHidden()
	case ws.ActionBlur:
		sc.ls.Signals.EmitBlur()
	case ws.ActionFullscreen:
		sc.ls.Signals.EmitFullscreenChange(msg.Active)
	case ws.ActionUnload:
		prompt := sc.ls.Signals.EmitUnloadAttempt()
		res := ws.UnloadPromptResponse{Event: ws.EventUnloadPrompt, Confirm: prompt.Confirm}
		if prompt.Confirm {
			res.Message = i18n.T(sc.p.ctx, "UnloadWarning")
		}
		sc.p.send(res)

	case ws.ActionSubmit:
		// Success is reported through the presenter's submitted notice.
		if _, err := sc.ls.Submit(ctx, session.TriggerManual); err != nil {
			if session.IsBenignSubmitError(err) {
				sc.log.Debug().Err(err).Msg("Duplicate submit ignored")
			}
			sc.fail(err)
		}

	case ws.ActionState:
		sc.p.send(ws.StateResponse{Event: ws.EventState, State: service.StateOf(sc.ls)})
	case ws.ActionPing:
		sc.p.send(ws.PongResponse{Event: ws.EventPong})

	default:
		sc.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		sc.p.sendError(string(response.ErrUnknownAction), response.Localize(sc.p.ctx, response.ErrUnknownAction))
	}
}

func (sc *streamConn) fail(err error) {
	_, code := sessionErrorCode(err)
	if code == response.ErrInternal {
		sc.log.Error().Err(err).Msg("Exam action failed")
	}
	sc.p.sendError(string(code), response.Localize(sc.p.ctx, code))
}
