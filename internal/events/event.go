// Package events fans pipeline outcomes out to ops consumers.
package events

import "time"

// Event is the wire form of one handled message.
type Event struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Stage      string    `json:"stage"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	Failed     bool      `json:"failed"`
	ChatID     int64     `json:"chat_id"`
	UserID     int64     `json:"user_id"`
	Chunks     int       `json:"chunks,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}
