package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/sosed/internal/model"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleItems() []model.Item {
	return []model.Item{
		{ID: 1, Title: "Cordless Drill", Description: "18V with two batteries", Category: model.CategoryTools, CreatedAt: t0, Owner: model.UserRef{ID: 1}},
		{ID: 2, Title: "Stand mixer", Description: "Great for bread DOUGH", Category: model.CategoryKitchen, CreatedAt: t0.Add(time.Minute), Owner: model.UserRef{ID: 2}},
		{ID: 3, Title: "Hedge trimmer", Description: "electric, works with any drill bit", Category: model.CategoryGarden, CreatedAt: t0.Add(2 * time.Minute), Owner: model.UserRef{ID: 1}},
		{ID: 4, Title: "Tent", Description: "4 person", Category: model.CategorySports, CreatedAt: t0.Add(3 * time.Minute), Owner: model.UserRef{ID: 2}, IsArchived: true},
	}
}

func ids(items []model.Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestFilterWildcardsIncludeEverything(t *testing.T) {
	items := sampleItems()
	assert.Len(t, Filter(items, "", model.CategoryAll), len(items))
	assert.Len(t, Filter(items, "", ""), len(items))
	assert.Len(t, Filter(items, "   ", ""), len(items))
}

func TestFilterCaseInsensitiveTitleOrDescription(t *testing.T) {
	items := sampleItems()

	assert.Equal(t, []int64{1, 3}, ids(Filter(items, "DRILL", "")))
	assert.Equal(t, []int64{2}, ids(Filter(items, "dough", model.CategoryAll)))
	assert.Empty(t, Filter(items, "kayak", ""))
}

func TestFilterCategory(t *testing.T) {
	items := sampleItems()

	got := Filter(items, "", model.CategoryTools)
	require.NotEmpty(t, got)
	for _, it := range got {
		assert.Equal(t, model.CategoryTools, it.Category)
	}

	assert.Equal(t, []int64{3}, ids(Filter(items, "drill", model.CategoryGarden)))
	assert.Empty(t, Filter(items, "", model.CategoryBooks))
}

func TestSearchExcludesArchived(t *testing.T) {
	c := New(newFakeRepo(sampleItems()...))

	items, err := c.Search(context.Background(), "", model.CategoryAll)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, ids(items))
}

func TestListRecentNewestFirst(t *testing.T) {
	repo := newFakeRepo(
		model.Item{Title: "T1", Category: model.CategoryOther, CreatedAt: t0},
		model.Item{Title: "T2", Category: model.CategoryOther, CreatedAt: t0.Add(time.Second)},
	)
	c := New(repo)

	items, err := c.ListRecent(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "T2", items[0].Title)
}

func TestListRecentLimit(t *testing.T) {
	var items []model.Item
	for i := range 12 {
		items = append(items, model.Item{Title: "x", Category: model.CategoryOther, CreatedAt: t0.Add(time.Duration(i) * time.Second)})
	}
	c := New(newFakeRepo(items...))

	got, err := c.ListRecent(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, RecentLimit)

	c.RecentLimit = 3
	got, err = c.ListRecent(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestListRecentEmpty(t *testing.T) {
	c := New(newFakeRepo())

	items, err := c.ListRecent(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGetByID(t *testing.T) {
	c := New(newFakeRepo(sampleItems()...))

	item, err := c.GetByID(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "Tent", item.Title)

	_, err = c.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVisibleArchivedItem(t *testing.T) {
	c := New(newFakeRepo(sampleItems()...))
	ctx := context.Background()

	tests := []struct {
		name     string
		viewerID int64
		role     string
		visible  bool
	}{
		{"anonymous", 0, "", false},
		{"other member", 1, model.RoleMember, false},
		{"owner", 2, model.RoleMember, true},
		{"admin", 9, model.RoleAdmin, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := c.Visible(ctx, 4, tt.viewerID, tt.role)
			if !tt.visible {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.True(t, item.IsArchived)
		})
	}

	item, err := c.Visible(ctx, 1, 0, "")
	require.NoError(t, err, "listed items are public")
	assert.Equal(t, "Cordless Drill", item.Title)
}

func TestGetByIDStorageError(t *testing.T) {
	repo := newFakeRepo()
	repo.err = errors.New("disk on fire")
	c := New(repo)

	_, err := c.GetByID(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestListForUserPartitions(t *testing.T) {
	c := New(newFakeRepo(sampleItems()...))

	mine, err := c.ListForUser(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 2}, ids(mine.All))
	assert.Equal(t, []int64{2}, ids(mine.Active()))
	assert.Equal(t, []int64{4}, ids(mine.Archived()))
	assert.Len(t, mine.All, len(mine.Active())+len(mine.Archived()))
}

func TestSetArchived(t *testing.T) {
	repo := newFakeRepo(sampleItems()...)
	c := New(repo)
	ctx := context.Background()

	require.NoError(t, c.SetArchived(ctx, 1, model.RoleMember, 1, true))
	assert.True(t, repo.items[1].IsArchived)

	mine, _ := c.ListForUser(ctx, 1)
	assert.Equal(t, []int64{1}, ids(mine.Archived()))

	require.NoError(t, c.SetArchived(ctx, 1, model.RoleMember, 1, false))
	assert.False(t, repo.items[1].IsArchived)

	assert.ErrorIs(t, c.SetArchived(ctx, 2, model.RoleMember, 1, true), ErrForbidden)
	assert.ErrorIs(t, c.SetArchived(ctx, 1, model.RoleMember, 99, true), ErrNotFound)

	require.NoError(t, c.SetArchived(ctx, 2, model.RoleAdmin, 1, true))
	assert.True(t, repo.items[1].IsArchived)
}

func TestSetImage(t *testing.T) {
	repo := newFakeRepo(sampleItems()...)
	c := New(repo)
	ctx := context.Background()

	require.NoError(t, c.SetImage(ctx, 1, 1, []byte("jpeg"), "image/jpeg"))
	assert.Equal(t, []byte("jpeg"), repo.images[1])

	assert.ErrorIs(t, c.SetImage(ctx, 2, 1, []byte("jpeg"), "image/jpeg"), ErrForbidden)
}
