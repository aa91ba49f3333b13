package messaging

import (
	"context"

	"github.com/erazemk/sosed/internal/model"
)

// Inbox is a user's list of conversations with one of them on display.
type Inbox struct {
	svc           *Service
	userID        int64
	activeID      int64
	Conversations []model.Conversation
}

// NewInbox returns an empty inbox backed by svc.
func NewInbox(svc *Service) *Inbox {
	return &Inbox{svc: svc}
}

// Load fetches userID's conversations. The current selection is kept if it
// still exists, otherwise the first conversation is selected.
func (in *Inbox) Load(ctx context.Context, userID int64) error {
	convs, err := in.svc.ListForUser(ctx, userID)
	if err != nil {
		return err
	}
	if userID != in.userID {
		in.activeID = 0
	}
	in.userID = userID
	in.Conversations = convs

	if in.find(in.activeID) == nil {
		in.activeID = 0
		if len(convs) > 0 {
			in.activeID = convs[0].ID
		}
	}
	return nil
}

// Select displays conversation id. Unknown ids leave the selection as is.
func (in *Inbox) Select(id int64) bool {
	if in.find(id) == nil {
		return false
	}
	in.activeID = id
	return true
}

// Active returns the displayed conversation, or nil when there is none.
func (in *Inbox) Active() *model.Conversation {
	return in.find(in.activeID)
}

// Send appends content to the displayed conversation and reloads the inbox.
func (in *Inbox) Send(ctx context.Context, content string) (*model.Message, error) {
	active := in.Active()
	if active == nil {
		return nil, ErrNotFound
	}
	msg, err := in.svc.Append(ctx, active.ID, in.userID, content)
	if err != nil {
		return nil, err
	}
	return msg, in.Load(ctx, in.userID)
}

func (in *Inbox) find(id int64) *model.Conversation {
	if id == 0 {
		return nil
	}
	for i := range in.Conversations {
		if in.Conversations[i].ID == id {
			return &in.Conversations[i]
		}
	}
	return nil
}
