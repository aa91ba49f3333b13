package catalog

import (
	"context"
	"sort"

	"github.com/erazemk/sosed/internal/model"
)

// fakeRepo is an in-memory Repository. Items are listed newest first like
// the SQL store does.
type fakeRepo struct {
	items  map[int64]*model.Item
	images map[int64][]byte
	nextID int64
	err    error
}

func newFakeRepo(items ...model.Item) *fakeRepo {
	r := &fakeRepo{items: map[int64]*model.Item{}, images: map[int64][]byte{}}
	for i := range items {
		it := items[i]
		if it.ID == 0 {
			r.nextID++
			it.ID = r.nextID
		} else if it.ID > r.nextID {
			r.nextID = it.ID
		}
		r.items[it.ID] = &it
	}
	return r
}

func (r *fakeRepo) sorted(keep func(*model.Item) bool) []model.Item {
	out := []model.Item{}
	for _, it := range r.items {
		if keep(it) {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *fakeRepo) ItemByID(_ context.Context, id int64) (*model.Item, error) {
	if r.err != nil {
		return nil, r.err
	}
	it, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (r *fakeRepo) ListedItems(context.Context) ([]model.Item, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.sorted(func(it *model.Item) bool { return !it.IsArchived }), nil
}

func (r *fakeRepo) RecentItems(ctx context.Context, limit int) ([]model.Item, error) {
	items, err := r.ListedItems(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *fakeRepo) UserItems(_ context.Context, ownerID int64) ([]model.Item, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.sorted(func(it *model.Item) bool { return it.Owner.ID == ownerID }), nil
}

func (r *fakeRepo) CreateItem(_ context.Context, item *model.Item, image []byte, _ string) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.nextID++
	cp := *item
	cp.ID = r.nextID
	if image != nil {
		r.images[cp.ID] = image
		cp.ImageURL = "/items/image"
	}
	r.items[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakeRepo) SetItemImage(_ context.Context, id int64, data []byte, _ string) error {
	if r.err != nil {
		return r.err
	}
	r.images[id] = data
	r.items[id].ImageURL = "/items/image"
	return nil
}

func (r *fakeRepo) SetItemArchived(_ context.Context, id int64, archived bool) error {
	if r.err != nil {
		return r.err
	}
	r.items[id].IsArchived = archived
	return nil
}
