package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sosed/internal/model"
)

// Store binds the package functions to a database handle so that the
// catalog, ledger, messaging and profile services can depend on interfaces.
type Store struct {
	DB *sqlx.DB
}

// New returns a Store backed by db.
func New(db *sqlx.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) UserByID(ctx context.Context, id int64) (*model.User, error) {
	return GetUser(ctx, s.DB, id)
}

func (s *Store) ItemByID(ctx context.Context, id int64) (*model.Item, error) {
	return GetItem(ctx, s.DB, id)
}

func (s *Store) ListedItems(ctx context.Context) ([]model.Item, error) {
	return ListListedItems(ctx, s.DB)
}

func (s *Store) RecentItems(ctx context.Context, limit int) ([]model.Item, error) {
	return ListRecentItems(ctx, s.DB, limit)
}

func (s *Store) UserItems(ctx context.Context, ownerID int64) ([]model.Item, error) {
	return ListUserItems(ctx, s.DB, ownerID)
}

func (s *Store) CreateItem(ctx context.Context, item *model.Item, image []byte, mime string) (int64, error) {
	return CreateItem(ctx, s.DB, item, image, mime)
}

func (s *Store) SetItemImage(ctx context.Context, id int64, data []byte, mime string) error {
	return SetItemImage(ctx, s.DB, id, data, mime)
}

func (s *Store) SetItemArchived(ctx context.Context, id int64, archived bool) error {
	return SetItemArchived(ctx, s.DB, id, archived)
}

func (s *Store) CreateRequest(ctx context.Context, itemID, senderID, recipientID int64, message string, createdAt time.Time) (int64, error) {
	return CreateRequest(ctx, s.DB, itemID, senderID, recipientID, message, createdAt)
}

func (s *Store) RequestByID(ctx context.Context, id int64) (*model.Request, error) {
	return GetRequest(ctx, s.DB, id)
}

func (s *Store) UpdateRequestStatus(ctx context.Context, id int64, from, to string) (bool, error) {
	return UpdateRequestStatus(ctx, s.DB, id, from, to)
}

func (s *Store) UserRequests(ctx context.Context, userID int64) ([]model.Request, error) {
	return ListUserRequests(ctx, s.DB, userID)
}

func (s *Store) UserConversations(ctx context.Context, userID int64) ([]model.Conversation, error) {
	return ListUserConversations(ctx, s.DB, userID)
}

func (s *Store) ConversationByID(ctx context.Context, id, viewerID int64) (*model.Conversation, error) {
	return GetConversation(ctx, s.DB, id, viewerID)
}

func (s *Store) StartConversation(ctx context.Context, userA, userB int64, itemID *int64, createdAt time.Time) (int64, error) {
	return FindOrCreateConversation(ctx, s.DB, userA, userB, itemID, createdAt)
}

func (s *Store) AppendMessage(ctx context.Context, conversationID, senderID int64, content string, createdAt time.Time) (*model.Message, error) {
	return AppendMessage(ctx, s.DB, conversationID, senderID, content, createdAt)
}
