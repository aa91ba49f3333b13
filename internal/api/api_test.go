package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/sosed/internal/auth"
	"github.com/erazemk/sosed/internal/catalog"
	"github.com/erazemk/sosed/internal/db"
	"github.com/erazemk/sosed/internal/ledger"
	"github.com/erazemk/sosed/internal/messaging"
	"github.com/erazemk/sosed/internal/model"
	"github.com/erazemk/sosed/internal/profile"
	"github.com/erazemk/sosed/internal/store"
)

const (
	testJWTSecret = "test-secret"
	testPassword  = "password123"
)

type testEnv struct {
	server     *httptest.Server
	db         *sqlx.DB
	adminToken string
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)

	st := store.New(database)
	cat := catalog.New(st)
	led := ledger.New(st)
	msgs := messaging.New(st, nil)
	router := NewRouter(Deps{
		DB:        database,
		Accounts:  &auth.Accounts{DB: database, JWTSecret: testJWTSecret},
		Catalog:   cat,
		Ledger:    led,
		Messaging: msgs,
		Profiles:  &profile.Aggregator{Users: st, Items: cat, Requests: led, Conversations: msgs},
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	hash, err := auth.HashPassword(testPassword)
	require.NoError(t, err)
	_, err = store.CreateUser(context.Background(), database, "admin", "Admin", hash, model.RoleAdmin)
	require.NoError(t, err)

	env := &testEnv{server: server, db: database}
	env.adminToken = env.login(t, "admin")
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	resp := e.do(t, "POST", "/api/auth/login", "", map[string]string{
		"username": username,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session struct {
		Token string `json:"token"`
	}
	decode(t, resp, &session)
	require.NotEmpty(t, session.Token)
	return session.Token
}

// member registers a user and returns their id and token.
func (e *testEnv) member(t *testing.T, username string) (int64, string) {
	t.Helper()
	resp := e.do(t, "POST", "/api/auth/register", "", map[string]string{
		"username": username,
		"name":     username,
		"password": testPassword,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var user model.User
	decode(t, resp, &user)
	return user.ID, e.login(t, username)
}

func (e *testEnv) createItem(t *testing.T, token, title string) model.Item {
	t.Helper()
	resp := e.do(t, "POST", "/api/items", token, map[string]string{
		"title":       title,
		"description": "Works fine",
		"category":    model.CategoryTools,
		"location":    "Block 4",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var item model.Item
	decode(t, resp, &item)
	return item
}

func decode(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func TestLoginEndpoint(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "POST", "/api/auth/register", "", map[string]string{"username": "ana", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/register", "", map[string]string{"username": "a b", "password": testPassword})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", "/api/auth/register", "", map[string]string{"username": "ana", "password": strings.Repeat("p", 80)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "passwords over 72 bytes")
	var body map[string]string
	decode(t, resp, &body)
	assert.Contains(t, body["error"], "at most 72")

	env.member(t, "ana")
	resp = env.do(t, "POST", "/api/auth/register", "", map[string]string{"username": "ana", "password": testPassword})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestItemsAPIFlow(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.member(t, "ana")

	drill := env.createItem(t, token, "Cordless drill")
	env.createItem(t, token, "Ladder")
	assert.Equal(t, "Cordless drill", drill.Title)
	assert.False(t, drill.IsArchived)

	resp := env.do(t, "GET", "/api/items?q=DRILL&category=All", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var found []model.Item
	decode(t, resp, &found)
	require.Len(t, found, 1)
	assert.Equal(t, drill.ID, found[0].ID)

	resp = env.do(t, "GET", "/api/items?category="+model.CategoryBooks, "", nil)
	var books []model.Item
	decode(t, resp, &books)
	assert.Empty(t, books)

	resp = env.do(t, "GET", "/api/items/recent", "", nil)
	var recent []model.Item
	decode(t, resp, &recent)
	require.Len(t, recent, 2)
	assert.Equal(t, "Ladder", recent[0].Title)

	resp = env.do(t, "GET", fmt.Sprintf("/api/items/%d", drill.ID), "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/api/items/999", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, "GET", "/api/categories", "", nil)
	var cats []string
	decode(t, resp, &cats)
	assert.Equal(t, model.Categories, cats)
}

func TestCreateItemValidation(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.member(t, "ana")

	resp := env.do(t, "POST", "/api/items", token, map[string]string{
		"title":           "  ",
		"category":        "Weapons",
		"available_until": "2001-01-01",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	decode(t, resp, &body)
	assert.Contains(t, body.Fields, "title")
	assert.Contains(t, body.Fields, "description")
	assert.Contains(t, body.Fields, "category")
	assert.Contains(t, body.Fields, "location")
	assert.Contains(t, body.Fields, "available_until")

	resp = env.do(t, "POST", "/api/items", token, map[string]string{"available_until": "soon"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = env.do(t, "GET", "/api/items", "", nil)
	var items []model.Item
	decode(t, resp, &items)
	assert.Empty(t, items, "nothing is written on validation failure")
}

func TestArchiveAPI(t *testing.T) {
	env := setupTestServer(t)
	_, owner := env.member(t, "ana")
	_, other := env.member(t, "bor")
	item := env.createItem(t, owner, "Tent")
	path := fmt.Sprintf("/api/items/%d/archive", item.ID)

	resp := env.do(t, "PUT", path, other, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, "PUT", path, owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var archived model.Item
	decode(t, resp, &archived)
	assert.True(t, archived.IsArchived)

	resp = env.do(t, "GET", "/api/items", "", nil)
	var listed []model.Item
	decode(t, resp, &listed)
	assert.Empty(t, listed)

	resp = env.do(t, "DELETE", path, env.adminToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "admins may restore any item")
}

func TestArchivedItemVisibility(t *testing.T) {
	env := setupTestServer(t)
	_, owner := env.member(t, "ana")
	_, other := env.member(t, "bor")
	item := env.createItem(t, owner, "Tent")
	require.NoError(t, store.SetItemImage(context.Background(), env.db, item.ID, []byte("jpeg"), "image/jpeg"))

	itemPath := fmt.Sprintf("/api/items/%d", item.ID)
	imagePath := itemPath + "/image"

	resp := env.do(t, "GET", imagePath, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, max-age=3600", resp.Header.Get("Cache-Control"))

	resp = env.do(t, "PUT", itemPath+"/archive", owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for name, token := range map[string]string{"anonymous": "", "other member": other} {
		resp = env.do(t, "GET", itemPath, token, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, name)
		resp = env.do(t, "GET", imagePath, token, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, name)
	}

	for name, token := range map[string]string{"owner": owner, "admin": env.adminToken} {
		resp = env.do(t, "GET", itemPath, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, name)
		var got model.Item
		decode(t, resp, &got)
		assert.True(t, got.IsArchived, name)

		resp = env.do(t, "GET", imagePath, token, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, name)
		assert.Equal(t, "private, no-store", resp.Header.Get("Cache-Control"), name)
	}

	resp = env.do(t, "GET", itemPath, "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequestsAPIFlow(t *testing.T) {
	env := setupTestServer(t)
	_, owner := env.member(t, "ana")
	_, borrower := env.member(t, "bor")
	item := env.createItem(t, owner, "Drill")

	resp := env.do(t, "POST", "/api/requests", owner, map[string]any{"item_id": item.ID, "message": "mine"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "self request")

	resp = env.do(t, "POST", "/api/requests", borrower, map[string]any{"item_id": item.ID, "message": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "empty message")

	resp = env.do(t, "POST", "/api/requests", borrower, map[string]any{"item_id": item.ID, "message": "Can I borrow it?"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var req model.Request
	decode(t, resp, &req)
	assert.Equal(t, model.RequestPending, req.Status)

	resp = env.do(t, "GET", "/api/requests", owner, nil)
	var listed requestsResponse
	decode(t, resp, &listed)
	assert.Len(t, listed.Incoming, 1)
	assert.Empty(t, listed.Outgoing)
	assert.Equal(t, 1, listed.Pending)

	accept := fmt.Sprintf("/api/requests/%d/accept", req.ID)
	resp = env.do(t, "POST", accept, borrower, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "only the recipient accepts")

	resp = env.do(t, "POST", fmt.Sprintf("/api/requests/%d/borrow", req.ID), owner, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", accept, owner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &req)
	assert.Equal(t, model.RequestAccepted, req.Status)

	resp = env.do(t, "POST", fmt.Sprintf("/api/requests/%d/decline", req.ID), owner, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, "POST", fmt.Sprintf("/api/requests/%d/complete", req.ID), borrower, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &req)
	assert.Equal(t, model.RequestCompleted, req.Status)
}

func TestConversationsAPIFlow(t *testing.T) {
	env := setupTestServer(t)
	anaID, ana := env.member(t, "ana")
	borID, bor := env.member(t, "bor")
	_, eve := env.member(t, "eve")

	resp := env.do(t, "POST", "/api/conversations", ana, map[string]any{"user_id": anaID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", "/api/conversations", ana, map[string]any{"user_id": borID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var conv struct {
		ID int64 `json:"id"`
	}
	decode(t, resp, &conv)

	path := fmt.Sprintf("/api/conversations/%d/messages", conv.ID)
	resp = env.do(t, "POST", path, bor, map[string]string{"content": "  hi there "})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var msg model.Message
	decode(t, resp, &msg)
	assert.Equal(t, "hi there", msg.Content)

	resp = env.do(t, "POST", path, bor, map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "POST", path, eve, map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, "POST", "/api/conversations/999/messages", ana, map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, "GET", "/api/conversations", ana, nil)
	var convs []struct {
		ID          int64           `json:"id"`
		LastMessage string          `json:"last_message"`
		Messages    []model.Message `json:"messages"`
	}
	decode(t, resp, &convs)
	require.Len(t, convs, 1)
	assert.Equal(t, "hi there", convs[0].LastMessage)
	assert.Len(t, convs[0].Messages, 1, "failed appends leave the count unchanged")
}

func TestStartConversationAboutItem(t *testing.T) {
	env := setupTestServer(t)
	_, ana := env.member(t, "ana")
	borID, bor := env.member(t, "bor")
	cenID, cen := env.member(t, "cen")
	drill := env.createItem(t, bor, "Drill")
	ladder := env.createItem(t, cen, "Ladder")

	resp := env.do(t, "POST", "/api/conversations", ana, map[string]any{"user_id": borID, "item_id": 9999})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, "POST", "/api/conversations", ana, map[string]any{"user_id": borID, "item_id": ladder.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "item owned by neither participant")

	resp = env.do(t, "PUT", fmt.Sprintf("/api/items/%d/archive", ladder.ID), cen, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, "POST", "/api/conversations", ana, map[string]any{"user_id": cenID, "item_id": ladder.ID})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "archived item")

	resp = env.do(t, "POST", "/api/conversations", ana, map[string]any{"user_id": borID, "item_id": drill.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var conv struct {
		ItemID    *int64 `json:"item_id"`
		ItemTitle string `json:"item_title"`
	}
	decode(t, resp, &conv)
	require.NotNil(t, conv.ItemID)
	assert.Equal(t, drill.ID, *conv.ItemID)
	assert.Equal(t, "Drill", conv.ItemTitle)

	resp = env.do(t, "GET", "/api/conversations", ana, nil)
	var convs []struct {
		ID int64 `json:"id"`
	}
	decode(t, resp, &convs)
	assert.Len(t, convs, 1, "rejected starts create nothing")
}

func TestProfileAPI(t *testing.T) {
	env := setupTestServer(t)
	anaID, ana := env.member(t, "ana")
	item := env.createItem(t, ana, "Drill")
	env.createItem(t, ana, "Saw")
	env.do(t, "PUT", fmt.Sprintf("/api/items/%d/archive", item.ID), ana, nil)

	resp := env.do(t, "PUT", "/api/profile", ana, map[string]string{"name": "Ana K.", "bio": "Handy"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/api/profile", ana, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p profileResponse
	decode(t, resp, &p)
	assert.Equal(t, "Ana K.", p.User.Name)
	assert.Equal(t, 2, p.User.ItemsShared)
	assert.Len(t, p.ActiveItems, 1)
	assert.Len(t, p.ArchivedItems, 1)

	resp = env.do(t, "GET", fmt.Sprintf("/api/users/%d", anaID), env.adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pub publicProfileResponse
	decode(t, resp, &pub)
	assert.Len(t, pub.Items, 1, "archived items are not public")
}

func TestUnauthenticatedAccess(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, "GET", "/api/items", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "browsing is public")

	resp = env.do(t, "POST", "/api/items", "", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "GET", "/api/profile", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutRevokesToken(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.member(t, "ana")

	resp := env.do(t, "POST", "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/api/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChangePasswordAPI(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.member(t, "ana")

	resp := env.do(t, "PUT", "/api/auth/password", token, map[string]string{
		"current_password": "wrong-password",
		"new_password":     "another-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, "PUT", "/api/auth/password", token, map[string]string{
		"current_password": testPassword,
		"new_password":     "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "PUT", "/api/auth/password", token, map[string]string{
		"current_password": testPassword,
		"new_password":     strings.Repeat("p", 80),
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, "PUT", "/api/auth/password", token, map[string]string{
		"current_password": testPassword,
		"new_password":     "another-password",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTwoFactorSetupAPI(t *testing.T) {
	env := setupTestServer(t)
	_, token := env.member(t, "ana")

	resp := env.do(t, "POST", "/api/auth/2fa/verify", token, map[string]string{"code": "123456"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "nothing set up yet")

	resp = env.do(t, "POST", "/api/auth/2fa/setup", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var setup auth.TwoFactorSetup
	decode(t, resp, &setup)
	assert.NotEmpty(t, setup.Secret)
	assert.Regexp(t, `^[A-Z0-9]{4}(-[A-Z0-9]{4}){3}$`, setup.RecoveryCode)

	resp = env.do(t, "POST", "/api/auth/2fa/verify", token, map[string]string{"code": "abcdef"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Still disabled, so a password alone logs in.
	env.login(t, "ana")
}

func TestRoleBasedAccess(t *testing.T) {
	env := setupTestServer(t)
	anaID, ana := env.member(t, "ana")
	borID, _ := env.member(t, "bor")
	env.createItem(t, ana, "Drill")

	resp := env.do(t, "DELETE", fmt.Sprintf("/api/users/%d", borID), ana, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, "PUT", fmt.Sprintf("/api/users/%d/rating", anaID), env.adminToken, map[string]float64{"rating": 7})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rated model.User
	decode(t, resp, &rated)
	assert.Equal(t, model.MaxRating, rated.Rating)

	resp = env.do(t, "DELETE", fmt.Sprintf("/api/users/%d", anaID), env.adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, "GET", "/api/items", "", nil)
	var items []model.Item
	decode(t, resp, &items)
	assert.Empty(t, items, "items of deleted users leave listings")

	resp = env.do(t, "DELETE", fmt.Sprintf("/api/users/%d", anaID), env.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
