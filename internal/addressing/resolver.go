// Package addressing decides whether an inbound message is directed at the
// bot and extracts the text that should be sent to the completion service.
package addressing

import (
	"strings"
)

// Kind describes how a message addressed the bot.
type Kind string

const (
	KindNone        Kind = ""
	KindReplyToBot  Kind = "reply_to_bot"
	KindReplyToUser Kind = "reply_to_user"
	KindMention     Kind = "mention"
)

// Rejection reasons.
const (
	ReasonNoText       = "no_text"
	ReasonNotAddressed = "not_addressed"
	ReasonEmptyQuery   = "empty_query"
)

// Reply is the message an inbound message replies to.
type Reply struct {
	FromBot        bool
	AuthorUsername string
	Text           string
}

// Input is everything the resolver needs to know about one message.
type Input struct {
	Text        string
	Reply       *Reply
	BotUsername string
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Accepted bool
	Reason   string
	Kind     Kind

	// Query is the text sent downstream.
	Query string
	// Quote is prior bot output the user replied to, if any.
	Quote string
	// Note is the user's own text accompanying a reply to someone else.
	Note string
}

func reject(kind Kind, reason string) Resolution {
	return Resolution{Kind: kind, Reason: reason}
}

// Resolve applies the addressing rules in priority order.
func Resolve(in Input) Resolution {
	if strings.TrimSpace(in.Text) == "" {
		return reject(KindNone, ReasonNoText)
	}
	handle := "@" + strings.TrimPrefix(strings.TrimSpace(in.BotUsername), "@")

	var res Resolution
	switch {
	case in.Reply != nil && in.Reply.FromBot:
		res = resolveReplyToBot(in.Text, in.Reply.Text, handle)
	case in.Reply != nil:
		res = resolveReplyToUser(in.Text, in.Reply.Text, handle)
	default:
		res = resolveMention(in.Text, handle)
	}
	if !res.Accepted {
		return res
	}
	if strings.TrimSpace(res.Query) == "" {
		return reject(res.Kind, ReasonEmptyQuery)
	}
	return res
}

func resolveReplyToBot(text, botText, handle string) Resolution {
	res := Resolution{Accepted: true, Kind: KindReplyToBot}
	quote := strings.TrimSpace(botText)
	if quote != "" && strings.HasPrefix(text, botText) {
		res.Quote = quote
		res.Query = stripHandle(text[len(botText):], handle)
		return res
	}
	if quote != "" {
		if trimmed := strings.TrimLeft(text, " \t\r\n"); strings.HasPrefix(trimmed, quote) {
			res.Quote = quote
			res.Query = stripHandle(trimmed[len(quote):], handle)
			return res
		}
	}
	trimmed := stripHandle(text, handle)
	res.Quote = trimmed
	res.Query = trimmed
	return res
}

func resolveReplyToUser(text, repliedText, handle string) Resolution {
	idx := indexHandle(text, handle)
	if idx < 0 {
		return reject(KindReplyToUser, ReasonNotAddressed)
	}
	note := strings.TrimSpace(text[:idx] + text[idx+len(handle):])
	note = strings.TrimSpace(strings.TrimLeft(note, ",:;"))
	return Resolution{
		Accepted: true,
		Kind:     KindReplyToUser,
		Query:    strings.TrimSpace(repliedText),
		Note:     note,
	}
}

func resolveMention(text, handle string) Resolution {
	trimmed := strings.TrimSpace(text)
	if !hasHandlePrefix(trimmed, handle) {
		return reject(KindMention, ReasonNotAddressed)
	}
	return Resolution{
		Accepted: true,
		Kind:     KindMention,
		Query:    stripHandle(trimmed, handle),
	}
}

// stripHandle trims s and drops a leading whole-token handle with the
// punctuation that usually follows it.
func stripHandle(s, handle string) string {
	s = strings.TrimSpace(s)
	if !hasHandlePrefix(s, handle) {
		return s
	}
	return strings.TrimSpace(strings.TrimLeft(s[len(handle):], " \t\r\n,:;"))
}

// hasHandlePrefix reports whether s begins with handle as a whole token.
func hasHandlePrefix(s, handle string) bool {
	if len(s) < len(handle) || !strings.EqualFold(s[:len(handle)], handle) {
		return false
	}
	return len(s) == len(handle) || !isWordByte(s[len(handle)])
}

// indexHandle returns the byte offset of the first whole-token,
// case-insensitive occurrence of handle in s, or -1.
func indexHandle(s, handle string) int {
	n := len(handle)
	for i := 0; i+n <= len(s); i++ {
		if !strings.EqualFold(s[i:i+n], handle) {
			continue
		}
		if i > 0 && isWordByte(s[i-1]) {
			continue
		}
		if i+n < len(s) && isWordByte(s[i+n]) {
			continue
		}
		return i
	}
	return -1
}

func isWordByte(b byte) bool {
	return b == '_' || b == '@' ||
		('0' <= b && b <= '9') ||
		('a' <= b && b <= 'z') ||
		('A' <= b && b <= 'Z')
}
