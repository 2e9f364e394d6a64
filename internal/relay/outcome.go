package relay

import (
	"time"

	"github.com/ashureev/chatrelay/internal/events"
)

// Stage names where handling of a message ended.
type Stage string

const (
	StagePolicy     Stage = "policy"
	StageAddressing Stage = "addressing"
	StageQuota      Stage = "quota"
	StageMembership Stage = "membership"
	StageCompletion Stage = "completion"
	StageSend       Stage = "send"
	StageStore      Stage = "store"
	StageDone       Stage = "done"
	StagePanic      Stage = "panic"
)

// Reasons recorded on outcomes.
const (
	ReasonChatNotAllowed = "chat_not_allowed"
	ReasonPrivateChat    = "private_chat"
	ReasonCommand        = "command"
	ReasonQuotaExceeded  = "quota_exceeded"
	ReasonReplied        = "replied"
)

// Outcome is the typed result of handling one inbound message. Exactly one
// is produced per message.
type Outcome struct {
	ID       string
	Stage    Stage
	Reason   string
	Err      error
	Chunks   int
	Duration time.Duration
	ChatID   int64
	UserID   int64
}

// Failed reports whether handling stopped because of an error rather than a
// deliberate rejection.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Replied reports whether a completion was delivered.
func (o Outcome) Replied() bool {
	return o.Stage == StageDone
}

// Event converts the outcome to its published form.
func (o Outcome) Event(at time.Time) events.Event {
	ev := events.Event{
		ID:         o.ID,
		Time:       at,
		Stage:      string(o.Stage),
		Reason:     o.Reason,
		Failed:     o.Failed(),
		ChatID:     o.ChatID,
		UserID:     o.UserID,
		Chunks:     o.Chunks,
		DurationMS: o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		ev.Error = o.Err.Error()
	}
	return ev
}
