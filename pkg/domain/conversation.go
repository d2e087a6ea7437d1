package domain

import "time"

// ConversationSchemaVersion is the version stamped on new conversation histories.
const ConversationSchemaVersion = "1.0.0"

// DefaultMaxIterations bounds the number of refinement turns of one conversation.
const DefaultMaxIterations = 20

// Sender identifies who authored a conversation message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// ConversationMessage is a single turn of a refinement conversation.
type ConversationMessage struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationHistory is the ordered record of refinement turns.
// The client treats it as opaque and round-trips it to the host.
type ConversationHistory struct {
	SchemaVersion    string                `json:"schemaVersion"`
	Messages         []ConversationMessage `json:"messages"`
	CurrentIteration int                   `json:"currentIteration"`
	MaxIterations    int                   `json:"maxIterations"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
}

// NewConversationHistory returns an empty history created at now.
func NewConversationHistory(now time.Time) *ConversationHistory {
	return &ConversationHistory{
		SchemaVersion: ConversationSchemaVersion,
		Messages:      []ConversationMessage{},
		MaxIterations: DefaultMaxIterations,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy of the history. A nil history clones to nil.
func (h *ConversationHistory) Clone() *ConversationHistory {
	if h == nil {
		return nil
	}
	c := *h
	c.Messages = append([]ConversationMessage(nil), h.Messages...)
	return &c
}

// LimitReached reports whether another refinement turn would exceed MaxIterations.
func (h *ConversationHistory) LimitReached() bool {
	if h == nil || h.MaxIterations <= 0 {
		return false
	}
	return h.CurrentIteration >= h.MaxIterations
}

// Append adds a user/ai exchange as one iteration.
func (h *ConversationHistory) Append(user, ai ConversationMessage) {
	h.Messages = append(h.Messages, user, ai)
	h.CurrentIteration++
	if ai.Timestamp.After(h.UpdatedAt) {
		h.UpdatedAt = ai.Timestamp
	}
}
