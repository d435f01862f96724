package session

import "errors"

var (
	ErrRegistrationIncomplete = errors.New("roll number and phone are required")
	ErrNotRegistering         = errors.New("session has already started")
	ErrNotInProgress          = errors.New("session is not in progress")
	ErrSubmitting             = errors.New("submission in progress")
	ErrUnknownQuestion        = errors.New("question does not belong to this exam")
	ErrUnknownOption          = errors.New("option does not belong to this question")
	ErrNotOnFinalQuestion     = errors.New("exam can only be submitted from the final question")
	ErrAlreadySubmitting      = errors.New("exam is already being submitted")
	ErrAlreadyCompleted       = errors.New("exam has already been submitted")
	ErrSaveFailed             = errors.New("failed to save submission")
	ErrClosed                 = errors.New("session has been closed")

	ErrExamNotFound     = errors.New("exam not found")
	ErrNoQuestions      = errors.New("exam has no questions")
	ErrInvalidExam      = errors.New("exam definition is invalid")
	ErrAlreadyAttempted = errors.New("exam already attempted")

	ErrScratchMiss = errors.New("scratch slot is empty")
)

// IsBenignSubmitError reports whether err only means another trigger won the submit race.
func IsBenignSubmitError(err error) bool {
	return errors.Is(err, ErrAlreadySubmitting) || errors.Is(err, ErrAlreadyCompleted)
}
