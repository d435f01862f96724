package session

// NoticeKind tells the presenter what happened.
type NoticeKind string

const (
	NoticeExamStarted      NoticeKind = "exam_started"
	NoticeTimeRemaining    NoticeKind = "time_remaining"
	NoticeViolationWarning NoticeKind = "violation_warning"
	NoticeViolationLimit   NoticeKind = "violation_limit"
	NoticeFullscreenExited NoticeKind = "fullscreen_exited"
	NoticeSubmitting       NoticeKind = "submitting"
	NoticeSubmitted        NoticeKind = "submitted"
	NoticeSubmitFailed     NoticeKind = "submit_failed"
)

// Notice is a student-facing event. Only the fields relevant to Kind are set.
type Notice struct {
	Kind      NoticeKind
	Count     int
	Limit     int
	Remaining int
	Auto      bool
	Err       error
}

// Presenter is the student's screen.
type Presenter interface {
	RequestFullscreen()
	ExitFullscreen()
	Notify(n Notice)
}

// NopPresenter is used while no client is attached.
type NopPresenter struct{}

func (NopPresenter) RequestFullscreen() {}
func (NopPresenter) ExitFullscreen()    {}
func (NopPresenter) Notify(Notice)      {}
