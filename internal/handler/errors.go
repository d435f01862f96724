package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
	"github.com/stemsi/exam-portal/internal/session"
)

type errMapping struct {
	err    error
	status int
	code   response.ErrCode
}

var sessionErrors = []errMapping{
	{session.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{session.ErrNoQuestions, http.StatusNotFound, response.ErrNoQuestions},
	{session.ErrInvalidExam, http.StatusUnprocessableEntity, response.ErrInvalidExam},
	{session.ErrAlreadyAttempted, http.StatusConflict, response.ErrAlreadyAttempted},
	{session.ErrAlreadyCompleted, http.StatusConflict, response.ErrAlreadyAttempted},
	{session.ErrRegistrationIncomplete, http.StatusBadRequest, response.ErrRegistrationIncomplete},
	{session.ErrNotRegistering, http.StatusConflict, response.ErrSessionAlreadyStarted},
	{session.ErrNotInProgress, http.StatusConflict, response.ErrSessionNotInProgress},
	{session.ErrSubmitting, http.StatusConflict, response.ErrSubmitting},
	{session.ErrAlreadySubmitting, http.StatusConflict, response.ErrSubmitting},
	{session.ErrUnknownQuestion, http.StatusBadRequest, response.ErrUnknownQuestion},
	{session.ErrUnknownOption, http.StatusBadRequest, response.ErrUnknownOption},
	{session.ErrNotOnFinalQuestion, http.StatusConflict, response.ErrNotOnFinalQuestion},
	{session.ErrSaveFailed, http.StatusServiceUnavailable, response.ErrSubmitFailed},
	{session.ErrClosed, http.StatusConflict, response.ErrConflict},
	{service.ErrNoLiveSession, http.StatusNotFound, response.ErrSessionNotStarted},
	{service.ErrLeaderboardNotReleased, http.StatusForbidden, response.ErrLeaderboardNotReleased},
	{service.ErrNotExamAuthor, http.StatusForbidden, response.ErrForbidden},
}

// sessionErrorCode maps exam and session errors to an HTTP status and error code.
// Anything unrecognised is an internal error.
func sessionErrorCode(err error) (int, response.ErrCode) {
	for _, m := range sessionErrors {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}
