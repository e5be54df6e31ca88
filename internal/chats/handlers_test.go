package chats

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/auth"
	"github.com/ageniuscoder/chatrelay/backend/internal/storage/storagetest"
	"github.com/ageniuscoder/chatrelay/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	router *gin.Engine
	store  Store
	users  users.Store
}

type member struct {
	users.User
	token string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := storagetest.NewDB(t)
	f := &fixture{store: Store{DB: db}, users: users.Store{DB: db}}

	r := gin.New()
	Register(r.Group("/api/chat", auth.JWTMiddleware("secret")), &Service{Store: f.store})
	f.router = r
	return f
}

func (f *fixture) user(t *testing.T, name string) member {
	t.Helper()
	u, err := f.users.Create(context.Background(), name, name+"@example.com", "secret1", "")
	require.NoError(t, err)
	tok, err := auth.NewToken("secret", u.ID, time.Hour)
	require.NoError(t, err)
	return member{User: u, token: tok}
}

func (f *fixture) do(t *testing.T, method, path string, as member, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+as.token)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeChat(t *testing.T, w *httptest.ResponseRecorder) Chat {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var c Chat
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	return c
}

func TestAccessChatIsIdempotent(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	first := decodeChat(t, f.do(t, http.MethodPost, "/api/chat", alice, gin.H{"userId": bob.ID}))
	assert.False(t, first.IsGroupChat)
	assert.Len(t, first.Users, 2)
	assert.True(t, first.HasUser(alice.ID))
	assert.True(t, first.HasUser(bob.ID))

	// bob opening the same conversation gets the same chat
	second := decodeChat(t, f.do(t, http.MethodPost, "/api/chat", bob, gin.H{"userId": alice.ID}))
	assert.Equal(t, first.ID, second.ID)

	w := f.do(t, http.MethodPost, "/api/chat", alice, gin.H{"userId": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/chat", alice, gin.H{"userId": alice.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAccessConcurrentFirstCallsShareOneChat(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	ctx := context.Background()

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := alice.ID, bob.ID
			if i%2 == 1 {
				from, to = to, from
			}
			c, err := f.store.Access(ctx, from, to)
			ids[i], errs[i] = c.ID, err
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	var n int
	require.NoError(t, f.store.DB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM chats WHERE is_group_chat=?`, false).Scan(&n))
	assert.Equal(t, 1, n)
	assert.Equal(t, pairKey(alice.ID, bob.ID), pairKey(bob.ID, alice.ID))
}

func TestGroupLifecycle(t *testing.T) {
	f := newFixture(t)
	admin, bob, carol, dave := f.user(t, "admin"), f.user(t, "bob"), f.user(t, "carol"), f.user(t, "dave")

	w := f.do(t, http.MethodPost, "/api/chat/group", admin, gin.H{"name": "team", "users": []string{bob.ID}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "a group needs two other users")

	g := decodeChat(t, f.do(t, http.MethodPost, "/api/chat/group", admin, gin.H{"name": "team", "users": []string{bob.ID, carol.ID, bob.ID}}))
	assert.True(t, g.IsGroupChat)
	assert.Equal(t, "team", g.ChatName)
	assert.Len(t, g.Users, 3)
	require.NotNil(t, g.GroupAdmin)
	assert.Equal(t, admin.ID, g.GroupAdmin.ID)

	g = decodeChat(t, f.do(t, http.MethodPut, "/api/chat/rename", bob, gin.H{"chatId": g.ID, "chatName": "renamed"}))
	assert.Equal(t, "renamed", g.ChatName)

	w = f.do(t, http.MethodPut, "/api/chat/rename", dave, gin.H{"chatId": g.ID, "chatName": "hijack"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPut, "/api/chat/groupadd", bob, gin.H{"chatId": g.ID, "userId": dave.ID})
	assert.Equal(t, http.StatusForbidden, w.Code, "only the admin adds")

	g = decodeChat(t, f.do(t, http.MethodPut, "/api/chat/groupadd", admin, gin.H{"chatId": g.ID, "userId": dave.ID}))
	assert.True(t, g.HasUser(dave.ID))

	// adding twice is harmless
	g = decodeChat(t, f.do(t, http.MethodPut, "/api/chat/groupadd", admin, gin.H{"chatId": g.ID, "userId": dave.ID}))
	assert.Len(t, g.Users, 4)

	w = f.do(t, http.MethodPut, "/api/chat/groupremove", bob, gin.H{"chatId": g.ID, "userId": carol.ID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	g = decodeChat(t, f.do(t, http.MethodPut, "/api/chat/groupremove", bob, gin.H{"chatId": g.ID, "userId": bob.ID}))
	assert.False(t, g.HasUser(bob.ID), "members may leave")

	g = decodeChat(t, f.do(t, http.MethodPut, "/api/chat/groupremove", admin, gin.H{"chatId": g.ID, "userId": carol.ID}))
	assert.False(t, g.HasUser(carol.ID))

	w = f.do(t, http.MethodPut, "/api/chat/groupadd", admin, gin.H{"chatId": "nope", "userId": dave.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGroupOpsRejectPrivateChats(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	c := decodeChat(t, f.do(t, http.MethodPost, "/api/chat", alice, gin.H{"userId": bob.ID}))

	w := f.do(t, http.MethodPut, "/api/chat/rename", alice, gin.H{"chatId": c.ID, "chatName": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListMineOrdersByActivity(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")

	withBob := decodeChat(t, f.do(t, http.MethodPost, "/api/chat", alice, gin.H{"userId": bob.ID}))
	time.Sleep(5 * time.Millisecond)
	group := decodeChat(t, f.do(t, http.MethodPost, "/api/chat/group", alice, gin.H{"name": "g", "users": []string{bob.ID, carol.ID}}))

	w := f.do(t, http.MethodGet, "/api/chat", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []Chat
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, group.ID, list[0].ID)
	assert.Equal(t, withBob.ID, list[1].ID)

	w = f.do(t, http.MethodGet, "/api/chat", carol, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
}

func TestIsMember(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")
	c, err := f.store.Access(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)

	ok, err := f.store.IsMember(context.Background(), c.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.store.IsMember(context.Background(), c.ID, carol.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
