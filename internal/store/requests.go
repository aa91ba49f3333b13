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

const requestSelect = `SELECT r.id, r.sender_id, r.recipient_id, r.message, r.status, r.created_at, r.updated_at,
	i.id AS "item.id", i.title AS "item.title",
	CASE WHEN i.image IS NULL THEN '' ELSE '/items/' || i.id || '/image' END AS "item.image_url",
	s.id AS "sender.id", s.name AS "sender.name",
	CASE WHEN s.avatar IS NULL THEN '' ELSE '/users/' || s.id || '/avatar' END AS "sender.avatar_url",
	rc.id AS "recipient.id", rc.name AS "recipient.name",
	CASE WHEN rc.avatar IS NULL THEN '' ELSE '/users/' || rc.id || '/avatar' END AS "recipient.avatar_url"
	FROM requests r
	JOIN items i ON i.id = r.item_id
	JOIN users s ON s.id = r.sender_id
	JOIN users rc ON rc.id = r.recipient_id`

// CreateRequest records a new pending borrow request and returns its id.
func CreateRequest(ctx context.Context, db *sqlx.DB, itemID, senderID, recipientID int64, message string, createdAt time.Time) (int64, error) {
	if senderID == recipientID {
		return 0, fmt.Errorf("cannot request from yourself")
	}

	created := createdAt.UTC()
	result, err := db.ExecContext(ctx,
		`INSERT INTO requests (item_id, sender_id, recipient_id, message, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		itemID, senderID, recipientID, message, model.RequestPending, created, created,
	)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting request id: %w", err)
	}
	return id, nil
}

// GetRequest returns a request by ID.
func GetRequest(ctx context.Context, db *sqlx.DB, id int64) (*model.Request, error) {
	r := &model.Request{}
	err := db.GetContext(ctx, r, requestSelect+` WHERE r.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting request: %w", err)
	}
	return r, nil
}

// UpdateRequestStatus moves a request from one status to another. It reports
// false when the request was no longer in the expected status.
func UpdateRequestStatus(ctx context.Context, db *sqlx.DB, id int64, from, to string) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("updating request status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking request update: %w", err)
	}
	return n == 1, nil
}

// ListUserRequests returns every request a user sent or received, newest first.
func ListUserRequests(ctx context.Context, db *sqlx.DB, userID int64) ([]model.Request, error) {
	var requests []model.Request
	err := db.SelectContext(ctx, &requests,
		requestSelect+` WHERE r.sender_id = ? OR r.recipient_id = ? ORDER BY r.created_at DESC, r.id DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}
	return requests, nil
}
