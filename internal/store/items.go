package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sosed/internal/model"
)

const itemSelect = `SELECT i.id, i.title, i.description, i.category, i.location,
	i.available_until, i.is_archived, i.created_at, i.updated_at,
	CASE WHEN i.image IS NULL THEN '' ELSE '/items/' || i.id || '/image' END AS image_url,
	u.id AS "owner.id", u.name AS "owner.name",
	CASE WHEN u.avatar IS NULL THEN '' ELSE '/users/' || u.id || '/avatar' END AS "owner.avatar_url"
	FROM items i
	JOIN users u ON u.id = i.owner_id`

// listed restricts a query to items shown in public listings.
const listed = ` WHERE i.is_archived = 0 AND u.deleted_at IS NULL`

const newestFirst = ` ORDER BY i.created_at DESC, i.id DESC`

// CreateItem inserts a new item owned by item.Owner.ID and returns its id.
// image may be nil; otherwise it is stored in the same row.
func CreateItem(ctx context.Context, db *sqlx.DB, item *model.Item, image []byte, mime string) (int64, error) {
	var until *time.Time
	if item.AvailableUntil != nil {
		t := item.AvailableUntil.UTC()
		until = &t
	}
	created := item.CreatedAt.UTC()

	result, err := db.ExecContext(ctx,
		`INSERT INTO items (owner_id, title, description, category, location, available_until, image, image_mime, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Owner.ID, item.Title, item.Description, item.Category, item.Location, until,
		blob(image), sql.NullString{String: mime, Valid: image != nil}, created, created,
	)
	if err != nil {
		return 0, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting item id: %w", err)
	}
	return id, nil
}

// blob binds a nil slice as NULL rather than an empty blob.
func blob(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

// GetItem returns an item by ID, archived or not.
func GetItem(ctx context.Context, db *sqlx.DB, id int64) (*model.Item, error) {
	item := &model.Item{}
	err := db.GetContext(ctx, item, itemSelect+` WHERE i.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListListedItems returns every listed item, newest first.
func ListListedItems(ctx context.Context, db *sqlx.DB) ([]model.Item, error) {
	var items []model.Item
	if err := db.SelectContext(ctx, &items, itemSelect+listed+newestFirst); err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

// ListRecentItems returns at most limit listed items, newest first.
func ListRecentItems(ctx context.Context, db *sqlx.DB, limit int) ([]model.Item, error) {
	var items []model.Item
	if err := db.SelectContext(ctx, &items, itemSelect+listed+newestFirst+` LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("listing recent items: %w", err)
	}
	return items, nil
}

// ListUserItems returns all items owned by a user, including archived ones.
func ListUserItems(ctx context.Context, db *sqlx.DB, ownerID int64) ([]model.Item, error) {
	var items []model.Item
	if err := db.SelectContext(ctx, &items, itemSelect+` WHERE i.owner_id = ?`+newestFirst, ownerID); err != nil {
		return nil, fmt.Errorf("listing user items: %w", err)
	}
	return items, nil
}

// SetItemArchived archives or restores an item.
func SetItemArchived(ctx context.Context, db *sqlx.DB, id int64, archived bool) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET is_archived = ?, updated_at = ? WHERE id = ?`,
		archived, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("archiving item: %w", err)
	}
	return nil
}

// SetItemImage sets an item's image data.
func SetItemImage(ctx context.Context, db *sqlx.DB, id int64, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET image = ?, image_mime = ?, updated_at = ? WHERE id = ?`,
		image, mime, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	return nil
}

// GetItemImage returns an item's image data and MIME type.
func GetItemImage(ctx context.Context, db *sqlx.DB, id int64) ([]byte, string, error) {
	var row struct {
		Image []byte         `db:"image"`
		Mime  sql.NullString `db:"image_mime"`
	}
	err := db.GetContext(ctx, &row, `SELECT image, image_mime FROM items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return row.Image, row.Mime.String, nil
}
