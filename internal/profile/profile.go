// Package profile assembles the per-user views shown on the profile page.
package profile

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/erazemk/sosed/internal/catalog"
	"github.com/erazemk/sosed/internal/ledger"
	"github.com/erazemk/sosed/internal/model"
)

// Profile tabs.
const (
	TabItems    = "items"
	TabRequests = "requests"
	TabMessages = "messages"
)

// ErrNotFound is returned for unknown or deleted users.
var ErrNotFound = errors.New("user not found")

// ParseTab returns tab if it names a profile tab, otherwise TabItems.
func ParseTab(tab string) string {
	switch tab {
	case TabRequests, TabMessages:
		return tab
	}
	return TabItems
}

type Users interface {
	UserByID(ctx context.Context, id int64) (*model.User, error)
}

type ItemLister interface {
	ListForUser(ctx context.Context, userID int64) (*catalog.UserItems, error)
}

type RequestLister interface {
	ListForUser(ctx context.Context, userID int64) (*ledger.UserRequests, error)
}

type ConversationLister interface {
	ListForUser(ctx context.Context, userID int64) ([]model.Conversation, error)
}

// Profile is everything the profile page shows about one user.
type Profile struct {
	User          *model.User
	Items         *catalog.UserItems
	Requests      *ledger.UserRequests
	Conversations []model.Conversation
}

// Aggregator loads profiles from the catalog, ledger and messaging services.
type Aggregator struct {
	Users         Users
	Items         ItemLister
	Requests      RequestLister
	Conversations ConversationLister
}

// Load fetches the user and the three per-user lists concurrently.
func (a *Aggregator) Load(ctx context.Context, userID int64) (*Profile, error) {
	p := &Profile{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		u, err := a.Users.UserByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("loading user: %w", err)
		}
		if u == nil || u.DeletedAt != nil {
			return ErrNotFound
		}
		p.User = u
		return nil
	})
	g.Go(func() error {
		items, err := a.Items.ListForUser(ctx, userID)
		p.Items = items
		return err
	})
	g.Go(func() error {
		requests, err := a.Requests.ListForUser(ctx, userID)
		p.Requests = requests
		return err
	})
	g.Go(func() error {
		convs, err := a.Conversations.ListForUser(ctx, userID)
		p.Conversations = convs
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return p, nil
}

// Public is the part of a profile other users may see: the user and their
// active items.
type Public struct {
	User  *model.User
	Items []model.Item
}

// LoadPublic fetches the public profile of userID.
func (a *Aggregator) LoadPublic(ctx context.Context, userID int64) (*Public, error) {
	u, err := a.Users.UserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if u == nil || u.DeletedAt != nil {
		return nil, ErrNotFound
	}
	items, err := a.Items.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Public{User: u, Items: items.Active()}, nil
}
