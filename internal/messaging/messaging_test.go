package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/sosed/internal/model"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	users  map[int64]*model.User
	items  map[int64]*model.Item
	convs  map[int64]*model.Conversation
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users: map[int64]*model.User{
			1: {ID: 1, Name: "Ana"},
			2: {ID: 2, Name: "Bor"},
			3: {ID: 3, Name: "Cene"},
		},
		items: map[int64]*model.Item{
			10: {ID: 10, Title: "Drill", Owner: model.UserRef{ID: 2}},
			11: {ID: 11, Title: "Tent", Owner: model.UserRef{ID: 1}, IsArchived: true},
			12: {ID: 12, Title: "Ladder", Owner: model.UserRef{ID: 3}},
		},
		convs: map[int64]*model.Conversation{},
	}
}

func (r *fakeRepo) view(c *model.Conversation, viewerID int64) model.Conversation {
	cp := *c
	cp.Messages = append([]model.Message(nil), c.Messages...)
	if u := r.users[c.Other(viewerID)]; u != nil {
		cp.Participant = u.Ref()
	}
	return cp
}

func (r *fakeRepo) UserByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (r *fakeRepo) ItemByID(_ context.Context, id int64) (*model.Item, error) {
	it, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return it, nil
}

func (r *fakeRepo) UserConversations(_ context.Context, userID int64) ([]model.Conversation, error) {
	var out []model.Conversation
	for id := int64(1); id <= r.nextID; id++ {
		if c := r.convs[id]; c.HasParticipant(userID) {
			out = append(out, r.view(c, userID))
		}
	}
	return out, nil
}

func (r *fakeRepo) ConversationByID(_ context.Context, id, viewerID int64) (*model.Conversation, error) {
	c, ok := r.convs[id]
	if !ok {
		return nil, nil
	}
	v := r.view(c, viewerID)
	return &v, nil
}

func (r *fakeRepo) StartConversation(_ context.Context, a, b int64, itemID *int64, createdAt time.Time) (int64, error) {
	u1, u2 := model.OrderedPair(a, b)
	for _, c := range r.convs {
		if c.User1ID == u1 && c.User2ID == u2 && sameItem(c.ItemID, itemID) {
			return c.ID, nil
		}
	}
	r.nextID++
	r.convs[r.nextID] = &model.Conversation{ID: r.nextID, User1ID: u1, User2ID: u2, ItemID: itemID, CreatedAt: createdAt}
	return r.nextID, nil
}

func sameItem(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *fakeRepo) AppendMessage(_ context.Context, convID, senderID int64, content string, createdAt time.Time) (*model.Message, error) {
	c := r.convs[convID]
	m := model.Message{ID: int64(len(c.Messages) + 1), ConversationID: convID, SenderID: senderID, Content: content, CreatedAt: createdAt}
	c.Messages = append(c.Messages, m)
	return &m, nil
}

type recorder struct {
	published []model.Message
}

func (r *recorder) Publish(_ int64, msg model.Message) {
	r.published = append(r.published, msg)
}

// clock advances by a minute on every call.
func clock() func() time.Time {
	now := t0
	return func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func newTestService() (*Service, *fakeRepo, *recorder) {
	repo := newFakeRepo()
	rec := &recorder{}
	s := New(repo, rec)
	s.Now = clock()
	return s, repo, rec
}

func TestStartCreatesOrGets(t *testing.T) {
	s, repo, _ := newTestService()
	ctx := context.Background()
	item := int64(10)

	c1, err := s.Start(ctx, 1, 2, &item)
	require.NoError(t, err)
	assert.Equal(t, "Bor", c1.Participant.Name)

	c2, err := s.Start(ctx, 2, 1, &item)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, "Ana", c2.Participant.Name)

	_, err = s.Start(ctx, 1, 2, nil)
	require.NoError(t, err)
	assert.Len(t, repo.convs, 2)
}

func TestStartErrors(t *testing.T) {
	s, _, _ := newTestService()
	ctx := context.Background()

	_, err := s.Start(ctx, 1, 1, nil)
	assert.ErrorIs(t, err, ErrSelfConversation)

	_, err = s.Start(ctx, 1, 42, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStartValidatesItem(t *testing.T) {
	s, repo, _ := newTestService()
	ctx := context.Background()
	id := func(v int64) *int64 { return &v }

	_, err := s.Start(ctx, 1, 2, id(999))
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = s.Start(ctx, 2, 1, id(11))
	assert.ErrorIs(t, err, ErrItemNotFound, "archived items cannot be discussed")

	_, err = s.Start(ctx, 1, 2, id(12))
	assert.ErrorIs(t, err, ErrItemNotShared)
	assert.Empty(t, repo.convs)

	c, err := s.Start(ctx, 1, 2, id(10))
	require.NoError(t, err)
	require.NotNil(t, c.ItemID)
	assert.Equal(t, int64(10), *c.ItemID)
}

func TestAppendPublishes(t *testing.T) {
	s, repo, rec := newTestService()
	ctx := context.Background()

	c, _ := s.Start(ctx, 1, 2, nil)
	msg, err := s.Append(ctx, c.ID, 1, "  Is the drill still available? ")
	require.NoError(t, err)
	assert.Equal(t, "Is the drill still available?", msg.Content)
	assert.Len(t, repo.convs[c.ID].Messages, 1)
	require.Len(t, rec.published, 1)
	assert.Equal(t, msg.ID, rec.published[0].ID)
}

func TestAppendEmptyLeavesConversationUnchanged(t *testing.T) {
	s, repo, rec := newTestService()
	ctx := context.Background()

	c, _ := s.Start(ctx, 1, 2, nil)
	s.Append(ctx, c.ID, 1, "first")

	_, err := s.Append(ctx, c.ID, 1, " \n\t ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Len(t, repo.convs[c.ID].Messages, 1)
	assert.Len(t, rec.published, 1)
}

func TestAppendErrors(t *testing.T) {
	s, _, _ := newTestService()
	ctx := context.Background()

	c, _ := s.Start(ctx, 1, 2, nil)

	_, err := s.Append(ctx, 99, 1, "hello")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Append(ctx, c.ID, 3, "hello")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestGetChecksParticipant(t *testing.T) {
	s, _, _ := newTestService()
	ctx := context.Background()

	c, _ := s.Start(ctx, 1, 2, nil)

	_, err := s.Get(ctx, c.ID, 3)
	assert.ErrorIs(t, err, ErrNotParticipant)

	got, err := s.Get(ctx, c.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestListForUserSortedByLastMessage(t *testing.T) {
	s, _, _ := newTestService()
	ctx := context.Background()

	withBor, _ := s.Start(ctx, 1, 2, nil)
	withCene, _ := s.Start(ctx, 1, 3, nil)
	s.Start(ctx, 2, 3, nil)

	convs, err := s.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, withCene.ID, convs[0].ID, "newer empty conversation first")

	s.Append(ctx, withBor.ID, 2, "ping")

	convs, err = s.ListForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, withBor.ID, convs[0].ID)
	assert.Equal(t, "ping", convs[0].LastMessage().Content)
}
