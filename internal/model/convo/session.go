package convo

import "time"

// Stage tracks how far a user's conversation has advanced towards a
// dispatchable download. Stages only ever move forward; a new URL from
// the same user starts a fresh session.
type Stage int

const (
	// StageChooseFormat: URL received, waiting for a format button.
	StageChooseFormat Stage = iota
	// StageChooseCookie: format recorded, waiting for the cookie yes/no.
	StageChooseCookie
	// StageChooseCookieAction: user said yes and already has a saved
	// cookie file, waiting for the reuse/upload-new choice.
	StageChooseCookieAction
	// StageAwaitUpload: the next document from this user is taken as the
	// cookie file.
	StageAwaitUpload
)

// String returns a short name for logs.
func (s Stage) String() string {
	switch s {
	case StageChooseFormat:
		return "choose-format"
	case StageChooseCookie:
		return "choose-cookie"
	case StageChooseCookieAction:
		return "choose-cookie-action"
	case StageAwaitUpload:
		return "await-upload"
	default:
		return "unknown"
	}
}

// Session captures one user's in-flight conversation between URL
// submission and job dispatch. The session is consumed (removed from the
// store) the moment a job is dispatched.
type Session struct {
	ChatID int64
	// PromptMessageID is the bot message edited in place as the
	// conversation advances, keeping the exchange visually linear.
	PromptMessageID int
	URL             string
	FormatKey       string
	Stage Stage
	// UpdatedAt is maintained by the session store and feeds the
	// staleness sweep.
	UpdatedAt time.Time
}
