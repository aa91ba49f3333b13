package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sosed/internal/model"
)

// conversationSelect takes the viewing user's id as its first argument; the
// participant is always the other user.
const conversationSelect = `SELECT c.id, c.user1_id, c.user2_id, c.item_id, c.created_at,
	COALESCE(i.title, '') AS item_title,
	p.id AS "participant.id", p.name AS "participant.name",
	CASE WHEN p.avatar IS NULL THEN '' ELSE '/users/' || p.id || '/avatar' END AS "participant.avatar_url"
	FROM conversations c
	LEFT JOIN items i ON i.id = c.item_id
	JOIN users p ON p.id = CASE WHEN c.user1_id = ? THEN c.user2_id ELSE c.user1_id END`

const messageColumns = `id, conversation_id, sender_id, content, created_at`

// ListUserConversations returns all conversations a user takes part in, with
// their messages, most recently active first.
func ListUserConversations(ctx context.Context, db *sqlx.DB, userID int64) ([]model.Conversation, error) {
	var convs []model.Conversation
	err := db.SelectContext(ctx, &convs,
		conversationSelect+` WHERE c.user1_id = ? OR c.user2_id = ?`,
		userID, userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	if len(convs) == 0 {
		return convs, nil
	}

	var messages []model.Message
	err = db.SelectContext(ctx, &messages,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id IN (SELECT id FROM conversations WHERE user1_id = ? OR user2_id = ?)
		 ORDER BY created_at, id`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversation messages: %w", err)
	}

	byConv := make(map[int64][]model.Message, len(convs))
	for _, m := range messages {
		byConv[m.ConversationID] = append(byConv[m.ConversationID], m)
	}
	for i := range convs {
		convs[i].Messages = byConv[convs[i].ID]
	}

	sort.SliceStable(convs, func(i, j int) bool {
		ti, tj := convs[i].LastMessageAt(), convs[j].LastMessageAt()
		if ti.Equal(tj) {
			return convs[i].ID > convs[j].ID
		}
		return ti.After(tj)
	})
	return convs, nil
}

// GetConversation returns a conversation with its messages as seen by viewerID.
func GetConversation(ctx context.Context, db *sqlx.DB, id, viewerID int64) (*model.Conversation, error) {
	c := &model.Conversation{}
	err := db.GetContext(ctx, c, conversationSelect+` WHERE c.id = ?`, viewerID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}

	err = db.SelectContext(ctx, &c.Messages,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY created_at, id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversation messages: %w", err)
	}
	return c, nil
}

// FindOrCreateConversation returns the id of the conversation between two users
// about itemID (nil for none), creating it when it does not exist yet.
func FindOrCreateConversation(ctx context.Context, db *sqlx.DB, userA, userB int64, itemID *int64, createdAt time.Time) (int64, error) {
	if userA == userB {
		return 0, fmt.Errorf("cannot start a conversation with yourself")
	}
	u1, u2 := model.OrderedPair(userA, userB)

	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (user1_id, user2_id, item_id, created_at) VALUES (?, ?, ?, ?)`,
		u1, u2, itemID, createdAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("creating conversation: %w", err)
	}

	var key int64
	if itemID != nil {
		key = *itemID
	}

	var id int64
	err = db.GetContext(ctx, &id,
		`SELECT id FROM conversations WHERE user1_id = ? AND user2_id = ? AND COALESCE(item_id, 0) = ?`,
		u1, u2, key,
	)
	if err != nil {
		return 0, fmt.Errorf("finding conversation: %w", err)
	}
	return id, nil
}

// AppendMessage adds a message to a conversation.
func AppendMessage(ctx context.Context, db *sqlx.DB, conversationID, senderID int64, content string, createdAt time.Time) (*model.Message, error) {
	m := &model.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      createdAt.UTC(),
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content, created_at) VALUES (?, ?, ?, ?)`,
		m.ConversationID, m.SenderID, m.Content, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	m.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting message id: %w", err)
	}
	return m, nil
}
