package websocket

import (
	"github.com/stemsi/exam-portal/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionRegister   Action = "register"
	ActionSelect     Action = "select"
	ActionNext       Action = "next"
	ActionPrev       Action = "prev"
	ActionGoto       Action = "goto"
	ActionHidden     Action = "hidden"
	ActionBlur       Action = "blur"
	ActionFullscreen Action = "fullscreen"
	ActionUnload     Action = "unload"
	ActionSubmit     Action = "submit"
	ActionState      Action = "state"
	ActionPing       Action = "ping"
)

// Request is every client message. Only the fields relevant to Action are read.
type Request struct {
	Action     Action `json:"action"`
	RollNumber string `json:"roll_number,omitempty"`
	Phone      string `json:"phone,omitempty"`
	QuestionID string `json:"question_id,omitempty"`
	OptionID   string `json:"option_id,omitempty"`
	Index      int    `json:"index,omitempty"`
	Active     bool   `json:"active,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState        Event = "state"
	EventSelection    Event = "selection"
	EventNavigated    Event = "navigated"
	EventNotice       Event = "notice"
	EventFullscreen   Event = "fullscreen"
	EventUnloadPrompt Event = "unload_prompt"
	EventSubmitted    Event = "submitted"
	EventError        Event = "error"
	EventPong         Event = "pong"
)

type StateResponse struct {
	Event Event                   `json:"event"`
	State *model.ExamSessionState `json:"state"`
}

type SelectionResponse struct {
	Event      Event    `json:"event"`
	QuestionID string   `json:"question_id"`
	Selected   []string `json:"selected"`
}

type NavigatedResponse struct {
	Event Event `json:"event"`
	Index int   `json:"index"`
}

// NoticeResponse carries a presenter notice with its localized message.
type NoticeResponse struct {
	Event     Event  `json:"event"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Count     int    `json:"count,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Remaining int    `json:"remaining,omitempty"`
	Auto      bool   `json:"auto,omitempty"`
}

// FullscreenResponse asks the client to enter (true) or leave (false) fullscreen.
type FullscreenResponse struct {
	Event  Event `json:"event"`
	Active bool  `json:"active"`
}

type UnloadPromptResponse struct {
	Event   Event  `json:"event"`
	Confirm bool   `json:"confirm"`
	Message string `json:"message,omitempty"`
}

type SubmittedResponse struct {
	Event        Event  `json:"event"`
	SubmissionID string `json:"submission_id"`
	Auto         bool   `json:"auto"`
}

type ErrorResponse struct {
	Event   Event  `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
