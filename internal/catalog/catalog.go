// Package catalog implements browsing, searching and archiving of shared items.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/sosed/internal/model"
)

// RecentLimit is the default number of items on the home page.
const RecentLimit = 8

var (
	// ErrNotFound is returned when an item does not exist.
	ErrNotFound = errors.New("item not found")
	// ErrForbidden is returned when a user modifies an item they do not own.
	ErrForbidden = errors.New("not allowed to modify this item")
)

// Repository is the item persistence the catalog depends on.
type Repository interface {
	ItemByID(ctx context.Context, id int64) (*model.Item, error)
	ListedItems(ctx context.Context) ([]model.Item, error)
	RecentItems(ctx context.Context, limit int) ([]model.Item, error)
	UserItems(ctx context.Context, ownerID int64) ([]model.Item, error)
	CreateItem(ctx context.Context, item *model.Item, image []byte, mime string) (int64, error)
	SetItemImage(ctx context.Context, id int64, data []byte, mime string) error
	SetItemArchived(ctx context.Context, id int64, archived bool) error
}

// Catalog serves item queries and mutations.
type Catalog struct {
	Repo        Repository
	RecentLimit int
	Now         func() time.Time
}

// New returns a Catalog with the default recent limit and clock.
func New(repo Repository) *Catalog {
	return &Catalog{Repo: repo, RecentLimit: RecentLimit, Now: time.Now}
}

func (c *Catalog) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// ListRecent returns the newest listed items.
func (c *Catalog) ListRecent(ctx context.Context) ([]model.Item, error) {
	limit := c.RecentLimit
	if limit <= 0 {
		limit = RecentLimit
	}
	items, err := c.Repo.RecentItems(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("loading recent items: %w", err)
	}
	return items, nil
}

// Search returns listed items matching query and category, newest first.
func (c *Catalog) Search(ctx context.Context, query, category string) ([]model.Item, error) {
	items, err := c.Repo.ListedItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading items: %w", err)
	}
	return Filter(items, query, category), nil
}

// Filter keeps items whose title or description contains query, ignoring
// case, and whose category matches. An empty query matches every item, and
// an empty or "All" category matches every category. Order is preserved.
func Filter(items []model.Item, query, category string) []model.Item {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if !model.MatchesCategory(it.Category, category) {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(it.Title), q) &&
			!strings.Contains(strings.ToLower(it.Description), q) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// GetByID returns an item, archived or not.
func (c *Catalog) GetByID(ctx context.Context, id int64) (*model.Item, error) {
	item, err := c.Repo.ItemByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading item: %w", err)
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}

// Visible returns an item as seen by a viewer. Archived items are reported as
// not found to everyone but their owner and admins. A zero viewerID is an
// anonymous viewer.
func (c *Catalog) Visible(ctx context.Context, id, viewerID int64, viewerRole string) (*model.Item, error) {
	item, err := c.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.IsArchived && !canSeeArchived(item, viewerID, viewerRole) {
		return nil, ErrNotFound
	}
	return item, nil
}

func canSeeArchived(item *model.Item, viewerID int64, viewerRole string) bool {
	if viewerID == 0 {
		return false
	}
	return item.Owner.ID == viewerID || model.RoleAtLeast(viewerRole, model.RoleAdmin)
}

// UserItems holds every item a user owns.
type UserItems struct {
	All []model.Item
}

// Active returns the items that are not archived.
func (u *UserItems) Active() []model.Item {
	return u.partition(false)
}

// Archived returns the archived items.
func (u *UserItems) Archived() []model.Item {
	return u.partition(true)
}

func (u *UserItems) partition(archived bool) []model.Item {
	out := make([]model.Item, 0, len(u.All))
	for _, it := range u.All {
		if it.IsArchived == archived {
			out = append(out, it)
		}
	}
	return out
}

// ListForUser returns all items owned by userID.
func (c *Catalog) ListForUser(ctx context.Context, userID int64) (*UserItems, error) {
	items, err := c.Repo.UserItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user items: %w", err)
	}
	return &UserItems{All: items}, nil
}

// SetArchived archives or restores an item. Only the owner or an admin may
// do so.
func (c *Catalog) SetArchived(ctx context.Context, actorID int64, actorRole string, itemID int64, archived bool) error {
	item, err := c.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Owner.ID != actorID && !model.RoleAtLeast(actorRole, model.RoleAdmin) {
		return ErrForbidden
	}
	if item.IsArchived == archived {
		return nil
	}
	if err := c.Repo.SetItemArchived(ctx, itemID, archived); err != nil {
		return fmt.Errorf("archiving item: %w", err)
	}
	return nil
}

// SetImage replaces an item's photo. Only the owner may do so.
func (c *Catalog) SetImage(ctx context.Context, actorID, itemID int64, data []byte, mime string) error {
	item, err := c.GetByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Owner.ID != actorID {
		return ErrForbidden
	}
	if err := c.Repo.SetItemImage(ctx, itemID, data, mime); err != nil {
		return fmt.Errorf("storing item image: %w", err)
	}
	return nil
}
