package response

import (
	"context"

	"github.com/stemsi/exam-portal/internal/i18n"
)

// ErrCode is a typed error code enum for consistent API error identification.
// Each code doubles as its translation message ID.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotFound           ErrCode = "EXAM_NOT_FOUND"
	ErrNoQuestions            ErrCode = "NO_QUESTIONS"
	ErrInvalidExam            ErrCode = "INVALID_EXAM"
	ErrAlreadyAttempted       ErrCode = "ALREADY_ATTEMPTED"
	ErrRegistrationIncomplete ErrCode = "REGISTRATION_INCOMPLETE"
	ErrSessionNotStarted      ErrCode = "SESSION_NOT_STARTED"
	ErrSessionAlreadyStarted  ErrCode = "SESSION_ALREADY_STARTED"
	ErrSessionNotInProgress   ErrCode = "SESSION_NOT_IN_PROGRESS"
	ErrSubmitting             ErrCode = "SUBMITTING"
	ErrUnknownQuestion        ErrCode = "UNKNOWN_QUESTION"
	ErrUnknownOption          ErrCode = "UNKNOWN_OPTION"
	ErrNotOnFinalQuestion     ErrCode = "NOT_ON_FINAL_QUESTION"
	ErrSubmitFailed           ErrCode = "SUBMIT_FAILED"
	ErrLeaderboardNotReleased ErrCode = "LEADERBOARD_NOT_RELEASED"
	ErrUnknownAction          ErrCode = "UNKNOWN_ACTION"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal   ErrCode = "INTERNAL_ERROR"
	ErrUnexpected ErrCode = "UNEXPECTED_ERROR"
)

// GetMessage returns a human-readable message for a given error code in the
// default language.
func GetMessage(code ErrCode) string {
	return Localize(context.Background(), code)
}

// Localize returns the message for code in the language carried by ctx.
// Unknown codes fall back to the generic unexpected-error message.
func Localize(ctx context.Context, code ErrCode) string {
	msg := i18n.T(ctx, string(code))
	if msg == string(code) {
		return i18n.T(ctx, string(ErrUnexpected))
	}
	return msg
}
