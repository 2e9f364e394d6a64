package domain

import (
	"math"
	"time"
)

// HumanTimeLayout is the layout of Record.HumanTime.
const HumanTimeLayout = "2006-01-02 15:04:05"

// Role is the author role of a stored message.
type Role string

const (
	// RoleUser denotes a message written by a chat member.
	RoleUser Role = "user"
	// RoleAssistant denotes a reply produced by the bot.
	RoleAssistant Role = "assistant"
)

// Record is a single timestamped conversation turn.
type Record struct {
	Timestamp float64 `json:"timestamp"`
	Message   string  `json:"message"`
	HumanTime string  `json:"human_time"`
	Role      Role    `json:"role,omitempty"`
}

// NewRecord creates a record stamped with t.
func NewRecord(t time.Time, text string, role Role) Record {
	return Record{
		Timestamp: float64(t.UnixNano()) / float64(time.Second),
		Message:   text,
		HumanTime: t.Format(HumanTimeLayout),
		Role:      role,
	}
}

// Time converts the epoch-seconds timestamp back to a time.Time.
func (r Record) Time() time.Time {
	sec, frac := math.Modf(r.Timestamp)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// EffectiveRole returns the record role, defaulting to RoleUser.
func (r Record) EffectiveRole() Role {
	if r.Role == RoleAssistant {
		return RoleAssistant
	}
	return RoleUser
}
