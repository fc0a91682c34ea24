// Package domain defines the conversation data model shared across the engine.
package domain

import "strconv"

// Message author identifiers.
const (
	FromUser = "user"
	FromBot  = "bot"
)

// Message is a single entry in the conversation history.
type Message struct {
	Text string `json:"text"`
	From string `json:"from"`

	// ActivityID is the server-assigned identifier. Empty for a user
	// message that has not been acknowledged yet.
	ActivityID string `json:"activity_id,omitempty"`

	// ClientMsgID is the locally generated correlation id, present only
	// on user messages.
	ClientMsgID string `json:"client_msg_id,omitempty"`
}

// ConversationSnapshot is the sole unit of persistence. It is replaced
// wholesale on every save; the engine's flow guards ensure a single
// writer at a time.
type ConversationSnapshot struct {
	ConversationID       string          `json:"conversation_id"`
	Watermark            string          `json:"watermark"`
	Messages             []Message       `json:"messages"`
	ProcessedActivityIDs map[string]bool `json:"processed_activity_ids"`
}

// NewSnapshot returns an empty snapshot ready for use.
func NewSnapshot() *ConversationSnapshot {
	return &ConversationSnapshot{
		ProcessedActivityIDs: make(map[string]bool),
	}
}

// Processed reports whether an activity id has already been merged.
func (s *ConversationSnapshot) Processed(activityID string) bool {
	return s.ProcessedActivityIDs[activityID]
}

// MarkProcessed records an activity id as merged.
func (s *ConversationSnapshot) MarkProcessed(activityID string) {
	if s.ProcessedActivityIDs == nil {
		s.ProcessedActivityIDs = make(map[string]bool)
	}
	s.ProcessedActivityIDs[activityID] = true
}

// FindByClientMsgID returns the user message carrying the given client
// message id, or nil when no message matches. The returned pointer
// aliases the snapshot's message slice.
func (s *ConversationSnapshot) FindByClientMsgID(clientMsgID string) *Message {
	if clientMsgID == "" {
		return nil
	}
	for i := range s.Messages {
		if s.Messages[i].ClientMsgID == clientMsgID {
			return &s.Messages[i]
		}
	}
	return nil
}

// AdvanceWatermark adopts a newer watermark value. Empty values are
// ignored, and when both cursors are numeric a regression is refused:
// the watermark only ever moves forward.
func (s *ConversationSnapshot) AdvanceWatermark(watermark string) {
	if watermark == "" {
		return
	}
	cur, errCur := strconv.ParseInt(s.Watermark, 10, 64)
	next, errNext := strconv.ParseInt(watermark, 10, 64)
	if errCur == nil && errNext == nil && next < cur {
		return
	}
	s.Watermark = watermark
}
