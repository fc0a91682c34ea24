// Package botapi implements the HTTP client for the remote chatbot agent.
package botapi

// ActivityTypeMessage marks activities that carry conversation text.
// Other activity types (events, typing signals) are ignored by the
// reconciler.
const ActivityTypeMessage = "message"

// BotSenderID is the sender id the agent uses for its own messages.
const BotSenderID = "bot"

// Sender identifies the author of an activity.
type Sender struct {
	ID string `json:"id"`
}

// ChannelData carries out-of-band activity metadata.
type ChannelData struct {
	FinalState bool `json:"finalState,omitempty"`
}

// Activity is a single message-or-event unit reported by the agent.
type Activity struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	From        Sender       `json:"from"`
	Text        string       `json:"text"`
	ChannelData *ChannelData `json:"channelData,omitempty"`
}

// FromBot reports whether the activity was authored by the agent.
func (a Activity) FromBot() bool {
	return a.From.ID == BotSenderID
}

// IsMessage reports whether the activity carries conversation text.
func (a Activity) IsMessage() bool {
	return a.Type == ActivityTypeMessage
}

// Terminal reports whether the activity signals the conversation's
// final step.
func (a Activity) Terminal() bool {
	return a.ChannelData != nil && a.ChannelData.FinalState
}

// ActivitySet is one poll response: the activities newer than the
// requested watermark plus the next watermark value.
type ActivitySet struct {
	Activities []Activity `json:"activities"`
	Watermark  string     `json:"watermark"`
}

// StatusInProgress is returned by the send endpoint while the agent is
// still processing an earlier request.
const StatusInProgress = "in_progress"

// SendResponse is the send endpoint's reply: either the assigned
// activity id or an in-progress marker.
type SendResponse struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
}

// InProgress reports whether the agent asked the client to re-issue the
// same request later.
func (r SendResponse) InProgress() bool {
	return r.Status == StatusInProgress
}
