package handler

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/i18n"
	"github.com/stemsi/exam-portal/internal/session"
	ws "github.com/stemsi/exam-portal/internal/websocket"
)

// wsPresenter renders session notices onto a student's WebSocket. Notices
// arrive from timer and monitor goroutines, so every write holds mu.
type wsPresenter struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	ctx          context.Context // carries the client's localizer
	submissionID uuid.UUID
	log          zerolog.Logger
}

func newWSPresenter(ctx context.Context, conn *websocket.Conn, submissionID uuid.UUID, log zerolog.Logger) *wsPresenter {
	return &wsPresenter{conn: conn, ctx: ctx, submissionID: submissionID, log: log}
}

func (p *wsPresenter) send(v interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ws.WriteTyped(p.conn, v); err != nil {
		p.log.Debug().Err(err).Msg("WebSocket write failed")
	}
}

func (p *wsPresenter) sendError(code, message string) {
	p.send(ws.ErrorResponse{Event: ws.EventError, Code: code, Message: message})
}

func (p *wsPresenter) RequestFullscreen() {
	p.send(ws.FullscreenResponse{Event: ws.EventFullscreen, Active: true})
}

func (p *wsPresenter) ExitFullscreen() {
	p.send(ws.FullscreenResponse{Event: ws.EventFullscreen, Active: false})
}

func (p *wsPresenter) Notify(n session.Notice) {
	p.send(ws.NoticeResponse{
		Event:     ws.EventNotice,
		Kind:      string(n.Kind),
		Message:   noticeMessage(p.ctx, n),
		Count:     n.Count,
		Limit:     n.Limit,
		Remaining: n.Remaining,
		Auto:      n.Auto,
	})
	if n.Kind == session.NoticeSubmitted {
		p.send(ws.SubmittedResponse{
			Event:        ws.EventSubmitted,
			SubmissionID: p.submissionID.String(),
			Auto:         n.Auto,
		})
	}
}

// noticeMessage localizes n. Countdown ticks carry no text.
func noticeMessage(ctx context.Context, n session.Notice) string {
	switch n.Kind {
	case session.NoticeExamStarted:
		return i18n.Td(ctx, "NoticeExamStarted", map[string]any{"Minutes": (n.Remaining + 59) / 60})
	case session.NoticeViolationWarning:
		return i18n.Td(ctx, "NoticeViolationWarning", map[string]any{"Count": n.Count, "Limit": n.Limit})
	case session.NoticeViolationLimit:
		return i18n.T(ctx, "NoticeViolationLimit")
	case session.NoticeFullscreenExited:
		return i18n.T(ctx, "NoticeFullscreenExited")
	case session.NoticeSubmitting:
		return i18n.T(ctx, "NoticeSubmitting")
	case session.NoticeSubmitted:
		if n.Auto {
			return i18n.T(ctx, "NoticeAutoSubmitted")
		}
		return i18n.T(ctx, "NoticeSubmitted")
	case session.NoticeSubmitFailed:
		return i18n.T(ctx, "NoticeSubmitFailed")
	default:
		return ""
	}
}
