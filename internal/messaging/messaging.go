// Package messaging stores conversations between users and the messages in them.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erazemk/sosed/internal/model"
)

var (
	ErrEmptyMessage     = errors.New("message cannot be empty")
	ErrNotFound         = errors.New("conversation not found")
	ErrNotParticipant   = errors.New("not a participant in this conversation")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	ErrUserNotFound     = errors.New("user not found")
	ErrItemNotFound     = errors.New("item not found")
	ErrItemNotShared    = errors.New("item does not belong to either participant")
)

// Repository is the conversation persistence the service depends on.
type Repository interface {
	UserByID(ctx context.Context, id int64) (*model.User, error)
	ItemByID(ctx context.Context, id int64) (*model.Item, error)
	UserConversations(ctx context.Context, userID int64) ([]model.Conversation, error)
	ConversationByID(ctx context.Context, id, viewerID int64) (*model.Conversation, error)
	StartConversation(ctx context.Context, userA, userB int64, itemID *int64, createdAt time.Time) (int64, error)
	AppendMessage(ctx context.Context, conversationID, senderID int64, content string, createdAt time.Time) (*model.Message, error)
}

// Publisher is notified of every appended message.
type Publisher interface {
	Publish(conversationID int64, msg model.Message)
}

// Service lists, starts and appends to conversations.
type Service struct {
	Repo      Repository
	Publisher Publisher
	Now       func() time.Time
}

// New returns a Service. pub may be nil.
func New(repo Repository, pub Publisher) *Service {
	return &Service{Repo: repo, Publisher: pub, Now: time.Now}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// ListForUser returns every conversation userID takes part in, most recently
// active first.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]model.Conversation, error) {
	convs, err := s.Repo.UserConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading conversations: %w", err)
	}
	SortByActivity(convs)
	return convs, nil
}

// SortByActivity orders conversations by the time of their last message,
// newest first.
func SortByActivity(convs []model.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastMessageAt().After(convs[j].LastMessageAt())
	})
}

// Get returns a conversation as seen by viewerID.
func (s *Service) Get(ctx context.Context, id, viewerID int64) (*model.Conversation, error) {
	c, err := s.Repo.ConversationByID(ctx, id, viewerID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if !c.HasParticipant(viewerID) {
		return nil, ErrNotParticipant
	}
	return c, nil
}

// Start returns the conversation between userID and otherID about itemID,
// creating it if needed. itemID may be nil for a general conversation;
// otherwise it must be a listed item owned by one of the two users.
func (s *Service) Start(ctx context.Context, userID, otherID int64, itemID *int64) (*model.Conversation, error) {
	if userID == otherID {
		return nil, ErrSelfConversation
	}
	other, err := s.Repo.UserByID(ctx, otherID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if other == nil || other.DeletedAt != nil {
		return nil, ErrUserNotFound
	}

	if itemID != nil {
		item, err := s.Repo.ItemByID(ctx, *itemID)
		if err != nil {
			return nil, fmt.Errorf("loading item: %w", err)
		}
		if item == nil || item.IsArchived {
			return nil, ErrItemNotFound
		}
		if item.Owner.ID != userID && item.Owner.ID != otherID {
			return nil, ErrItemNotShared
		}
	}

	id, err := s.Repo.StartConversation(ctx, userID, otherID, itemID, s.now())
	if err != nil {
		return nil, fmt.Errorf("starting conversation: %w", err)
	}
	return s.Get(ctx, id, userID)
}

// Append adds a message from senderID to a conversation and publishes it.
func (s *Service) Append(ctx context.Context, conversationID, senderID int64, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if _, err := s.Get(ctx, conversationID, senderID); err != nil {
		return nil, err
	}

	msg, err := s.Repo.AppendMessage(ctx, conversationID, senderID, content, s.now())
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	if s.Publisher != nil {
		s.Publisher.Publish(conversationID, *msg)
	}
	return msg, nil
}
