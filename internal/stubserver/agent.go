// Package stubserver implements a local, in-memory stand-in for the
// remote chatbot agent. It speaks the same start/poll/send protocol and
// is used for development and end-to-end testing of the sync engine.
package stubserver

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"botsync/internal/botapi"

	"github.com/google/uuid"
)

// Agent is a scripted in-memory chatbot. It welcomes every new
// conversation, echoes user messages back as user-authored activities,
// replies to each message, and ends the conversation when the user says
// goodbye.
type Agent struct {
	mu    sync.Mutex
	convs map[string]*conversation

	// AsyncReplies makes the first send attempt for each message answer
	// {status: "in_progress"}, forcing clients through the async
	// re-issue path.
	AsyncReplies bool
}

type conversation struct {
	activities    []botapi.Activity
	byClientMsgID map[string]string // client msg id -> assigned activity id
	asyncPending  map[string]bool
	nextSeq       int
	finished      bool
}

// NewAgent creates an empty scripted agent.
func NewAgent() *Agent {
	return &Agent{convs: make(map[string]*conversation)}
}

// StartConversation allocates a conversation id and seeds the welcome
// message.
func (a *Agent) StartConversation() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := "conv-" + uuid.New().String()
	conv := &conversation{
		byClientMsgID: make(map[string]string),
		asyncPending:  make(map[string]bool),
	}
	a.convs[id] = conv
	conv.appendBot("Hi! I'm the stub agent. Say \"bye\" to finish.", false)
	return id
}

// Activities returns the activities newer than the given watermark and
// the next watermark value. Unknown conversations yield an error.
func (a *Agent) Activities(conversationID, watermark string) (*botapi.ActivitySet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	conv, ok := a.convs[conversationID]
	if !ok {
		return nil, fmt.Errorf("unknown conversation %q", conversationID)
	}

	since := 0
	if watermark != "" {
		n, err := strconv.Atoi(watermark)
		if err != nil {
			return nil, fmt.Errorf("bad watermark %q", watermark)
		}
		since = n
	}
	if since > len(conv.activities) {
		since = len(conv.activities)
	}

	out := make([]botapi.Activity, len(conv.activities)-since)
	copy(out, conv.activities[since:])
	return &botapi.ActivitySet{
		Activities: out,
		Watermark:  strconv.Itoa(len(conv.activities)),
	}, nil
}

// Send records one user message. Repeated sends carrying the same
// client msg id return the originally assigned activity id, so retries
// never duplicate. When AsyncReplies is on, the first attempt per
// message reports in-progress instead.
func (a *Agent) Send(conversationID, text, clientMsgID string) (*botapi.SendResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	conv, ok := a.convs[conversationID]
	if !ok {
		return nil, fmt.Errorf("unknown conversation %q", conversationID)
	}

	if id, seen := conv.byClientMsgID[clientMsgID]; seen {
		return &botapi.SendResponse{ID: id}, nil
	}
	if a.AsyncReplies && !conv.asyncPending[clientMsgID] {
		conv.asyncPending[clientMsgID] = true
		return &botapi.SendResponse{Status: botapi.StatusInProgress}, nil
	}

	echoID := conv.appendUser(text)
	conv.byClientMsgID[clientMsgID] = echoID

	if strings.EqualFold(strings.TrimSpace(text), "bye") {
		conv.appendBot("Goodbye! This conversation is now complete.", true)
		conv.finished = true
	} else if !conv.finished {
		conv.appendBot("You said: "+text, false)
	}
	return &botapi.SendResponse{ID: echoID}, nil
}

func (c *conversation) appendBot(text string, terminal bool) string {
	act := botapi.Activity{
		ID:   c.newID(),
		Type: botapi.ActivityTypeMessage,
		From: botapi.Sender{ID: botapi.BotSenderID},
		Text: text,
	}
	if terminal {
		act.ChannelData = &botapi.ChannelData{FinalState: true}
	}
	c.activities = append(c.activities, act)
	return act.ID
}

func (c *conversation) appendUser(text string) string {
	act := botapi.Activity{
		ID:   c.newID(),
		Type: botapi.ActivityTypeMessage,
		From: botapi.Sender{ID: "user"},
		Text: text,
	}
	c.activities = append(c.activities, act)
	return act.ID
}

func (c *conversation) newID() string {
	c.nextSeq++
	return fmt.Sprintf("act-%04d", c.nextSeq)
}
