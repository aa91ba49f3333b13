package model

import (
	"errors"
	"time"
)

// Request represents a borrow request sent to an item's owner.
type Request struct {
	ID          int64     `db:"id" json:"id"`
	SenderID    int64     `db:"sender_id" json:"sender_id"`
	RecipientID int64     `db:"recipient_id" json:"recipient_id"`
	Message     string    `db:"message" json:"message"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
	Item        ItemRef   `db:"item" json:"item"`
	Sender      UserRef   `db:"sender" json:"sender"`
	Recipient   UserRef   `db:"recipient" json:"recipient"`
}

// Request statuses.
const (
	RequestPending   = "pending"
	RequestAccepted  = "accepted"
	RequestDeclined  = "declined"
	RequestCompleted = "completed"
)

// Request actions.
const (
	ActionAccept   = "accept"
	ActionDecline  = "decline"
	ActionComplete = "complete"
)

// ErrIllegalTransition is returned when an action is not allowed from the
// request's current status.
var ErrIllegalTransition = errors.New("illegal request status transition")

// ErrUnknownAction is returned for an action outside the known set.
var ErrUnknownAction = errors.New("unknown request action")

// NextStatus returns the status a request moves to when action is applied.
// Only pending→accepted, pending→declined and accepted→completed exist.
func NextStatus(status, action string) (string, error) {
	switch action {
	case ActionAccept:
		if status == RequestPending {
			return RequestAccepted, nil
		}
	case ActionDecline:
		if status == RequestPending {
			return RequestDeclined, nil
		}
	case ActionComplete:
		if status == RequestAccepted {
			return RequestCompleted, nil
		}
	default:
		return status, ErrUnknownAction
	}
	return status, ErrIllegalTransition
}

// Terminal reports whether no further transition is possible.
func (r Request) Terminal() bool {
	return r.Status == RequestDeclined || r.Status == RequestCompleted
}
