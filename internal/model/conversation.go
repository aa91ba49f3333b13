package model

import (
	"encoding/json"
	"time"
)

// Conversation is a message thread between two users, optionally about an item.
type Conversation struct {
	ID          int64     `db:"id"`
	User1ID     int64     `db:"user1_id"`
	User2ID     int64     `db:"user2_id"`
	ItemID      *int64    `db:"item_id"`
	ItemTitle   string    `db:"item_title"`
	CreatedAt   time.Time `db:"created_at"`
	Participant UserRef   `db:"participant"`
	Messages    []Message `db:"-"`
}

// Message is a single immutable message in a conversation.
type Message struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	SenderID       int64     `db:"sender_id" json:"sender_id"`
	Content        string    `db:"content" json:"content"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Other returns the id of the participant that is not userID.
func (c *Conversation) Other(userID int64) int64 {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// LastMessage returns the newest message, or nil for an empty conversation.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return &c.Messages[len(c.Messages)-1]
}

// LastMessageAt is the time of the newest message, falling back to the
// conversation's creation time.
func (c *Conversation) LastMessageAt() time.Time {
	if m := c.LastMessage(); m != nil {
		return m.CreatedAt
	}
	return c.CreatedAt
}

// MarshalJSON includes the derived last-message fields.
func (c Conversation) MarshalJSON() ([]byte, error) {
	var last string
	if m := c.LastMessage(); m != nil {
		last = m.Content
	}
	messages := c.Messages
	if messages == nil {
		messages = []Message{}
	}
	return json.Marshal(struct {
		ID            int64     `json:"id"`
		Participant   UserRef   `json:"participant"`
		ItemID        *int64    `json:"item_id,omitempty"`
		ItemTitle     string    `json:"item_title,omitempty"`
		LastMessage   string    `json:"last_message"`
		LastMessageAt time.Time `json:"last_message_at"`
		Messages      []Message `json:"messages"`
	}{
		ID:            c.ID,
		Participant:   c.Participant,
		ItemID:        c.ItemID,
		ItemTitle:     c.ItemTitle,
		LastMessage:   last,
		LastMessageAt: c.LastMessageAt(),
		Messages:      messages,
	})
}

// OrderedPair returns the two user ids sorted ascending, the form in which
// conversation participants are stored.
func OrderedPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}
