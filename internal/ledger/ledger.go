// Package ledger records borrow requests and drives their status machine.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/sosed/internal/model"
)

var (
	ErrSelfRequest  = errors.New("cannot request your own item")
	ErrEmptyMessage = errors.New("message cannot be empty")
	ErrItemNotFound = errors.New("item not found")
	ErrNotOwner     = errors.New("recipient does not own the item")
	ErrNotFound     = errors.New("request not found")
	ErrForbidden    = errors.New("not allowed to act on this request")
)

// Repository is the request persistence the ledger depends on.
type Repository interface {
	ItemByID(ctx context.Context, id int64) (*model.Item, error)
	CreateRequest(ctx context.Context, itemID, senderID, recipientID int64, message string, createdAt time.Time) (int64, error)
	RequestByID(ctx context.Context, id int64) (*model.Request, error)
	UpdateRequestStatus(ctx context.Context, id int64, from, to string) (bool, error)
	UserRequests(ctx context.Context, userID int64) ([]model.Request, error)
}

// Ledger creates requests and applies status transitions.
type Ledger struct {
	Repo Repository
	Now  func() time.Time
}

// New returns a Ledger using the wall clock.
func New(repo Repository) *Ledger {
	return &Ledger{Repo: repo, Now: time.Now}
}

func (l *Ledger) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}

// Create sends a pending borrow request for itemID from senderID to the
// item's owner recipientID.
func (l *Ledger) Create(ctx context.Context, senderID, recipientID, itemID int64, message string) (*model.Request, error) {
	if senderID == recipientID {
		return nil, ErrSelfRequest
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	item, err := l.Repo.ItemByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("loading item: %w", err)
	}
	if item == nil || item.IsArchived {
		return nil, ErrItemNotFound
	}
	if item.Owner.ID != recipientID {
		return nil, ErrNotOwner
	}

	id, err := l.Repo.CreateRequest(ctx, itemID, senderID, recipientID, message, l.now())
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return l.Get(ctx, id)
}

// Get returns a request by id.
func (l *Ledger) Get(ctx context.Context, id int64) (*model.Request, error) {
	r, err := l.Repo.RequestByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading request: %w", err)
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

// Transition applies action to a request. Illegal transitions, including
// ones lost to a concurrent change, return model.ErrIllegalTransition and
// leave the request as it was.
func (l *Ledger) Transition(ctx context.Context, requestID int64, action string) (*model.Request, error) {
	r, err := l.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	next, err := model.NextStatus(r.Status, action)
	if err != nil {
		return nil, err
	}

	ok, err := l.Repo.UpdateRequestStatus(ctx, requestID, r.Status, next)
	if err != nil {
		return nil, fmt.Errorf("updating request: %w", err)
	}
	if !ok {
		return nil, model.ErrIllegalTransition
	}
	return l.Get(ctx, requestID)
}

// Act is Transition on behalf of actorID, who must be allowed to take the
// action.
func (l *Ledger) Act(ctx context.Context, actorID, requestID int64, action string) (*model.Request, error) {
	r, err := l.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !CanAct(r, actorID, action) {
		return nil, ErrForbidden
	}
	return l.Transition(ctx, requestID, action)
}

// CanAct reports whether actorID may apply action to r. The recipient
// accepts or declines; either party may mark an accepted request completed.
func CanAct(r *model.Request, actorID int64, action string) bool {
	switch action {
	case model.ActionAccept, model.ActionDecline:
		return r.RecipientID == actorID
	case model.ActionComplete:
		return r.RecipientID == actorID || r.SenderID == actorID
	}
	return false
}

// UserRequests holds every request a user sent or received.
type UserRequests struct {
	UserID int64
	All    []model.Request
}

// Incoming returns the requests the user received.
func (u *UserRequests) Incoming() []model.Request {
	out := make([]model.Request, 0, len(u.All))
	for _, r := range u.All {
		if r.RecipientID == u.UserID {
			out = append(out, r)
		}
	}
	return out
}

// Outgoing returns the requests the user sent.
func (u *UserRequests) Outgoing() []model.Request {
	out := make([]model.Request, 0, len(u.All))
	for _, r := range u.All {
		if r.SenderID == u.UserID {
			out = append(out, r)
		}
	}
	return out
}

// Pending counts the incoming requests still waiting for an answer.
func (u *UserRequests) Pending() int {
	n := 0
	for _, r := range u.Incoming() {
		if r.Status == model.RequestPending {
			n++
		}
	}
	return n
}

// ListForUser returns all requests userID sent or received.
func (l *Ledger) ListForUser(ctx context.Context, userID int64) (*UserRequests, error) {
	all, err := l.Repo.UserRequests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading requests: %w", err)
	}
	return &UserRequests{UserID: userID, All: all}, nil
}
