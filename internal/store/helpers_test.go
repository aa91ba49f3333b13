package store

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/sosed/internal/model"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func mustUser(t *testing.T, db *sqlx.DB, username string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, username, username, "hash", model.RoleMember)
	require.NoError(t, err)
	return u
}

func mustItem(t *testing.T, db *sqlx.DB, ownerID int64, title, category string, createdAt time.Time) int64 {
	t.Helper()
	id, err := CreateItem(context.Background(), db, &model.Item{
		Title:       title,
		Description: title + " description",
		Category:    category,
		Location:    "Ljubljana",
		CreatedAt:   createdAt,
		Owner:       model.UserRef{ID: ownerID},
	}, nil, "")
	require.NoError(t, err)
	return id
}
