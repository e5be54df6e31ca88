package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/chatclient"
	"github.com/ageniuscoder/chatrelay/backend/internal/otp"
	"github.com/ageniuscoder/chatrelay/backend/internal/relay"
	"github.com/ageniuscoder/chatrelay/backend/internal/storage/storagetest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var otpRe = regexp.MustCompile(`Your OTP is: (\d+)`)

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (i *inbox) Send(_ context.Context, to, _, body string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if m := otpRe.FindStringSubmatch(body); m != nil {
		i.codes[to] = m[1]
	}
	return nil
}

func (i *inbox) code(to string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[to]
}

type app struct {
	t     *testing.T
	srv   *httptest.Server
	inbox *inbox
	down  atomic.Bool
}

type account struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

func newApp(t *testing.T) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := storagetest.NewDB(t)
	a := &app{t: t, inbox: &inbox{codes: map[string]string{}}}

	ping := func(context.Context) error {
		if a.down.Load() {
			return errors.New("down")
		}
		return nil
	}
	router := newRouter(deps{
		DB:              db,
		Ping:            ping,
		OTPStore:        otp.SQLStore{DB: db},
		Mailer:          a.inbox,
		OTPDigits:       6,
		OTPTTL:          time.Minute,
		JWTSecret:       "secret",
		JWTTTL:          time.Hour,
		WSAllowedOrigin: "*",
	})
	a.srv = httptest.NewServer(router)
	t.Cleanup(a.srv.Close)
	return a
}

func (a *app) call(method, path, token string, body any, out any) int {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(a.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (a *app) signup(name string) account {
	a.t.Helper()
	email := strings.ToLower(name) + "@example.com"
	body := gin.H{"name": name, "email": email, "password": "secret1"}
	require.Equal(a.t, http.StatusOK, a.call(http.MethodPost, "/api/user", "", body, nil))

	body["otp"] = a.inbox.code(email)
	var acc account
	require.Equal(a.t, http.StatusCreated, a.call(http.MethodPost, "/api/user/verify", "", body, &acc))
	return acc
}

func (a *app) dial(acc account, rec *chatclient.Reconciler) *chatclient.Client {
	a.t.Helper()
	url := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/ws"
	c, err := chatclient.Dial(context.Background(), url, acc.Token, rec)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { c.Close() })

	require.NoError(a.t, c.Setup(chatclient.User{ID: acc.ID, Name: acc.Name}))
	select {
	case <-c.Connected():
	case <-time.After(2 * time.Second):
		a.t.Fatal("no connected ack")
	}
	return c
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	var body map[string]any
	assert.Equal(t, http.StatusOK, a.call(http.MethodGet, "/api/health", "", nil, &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "relay")

	a.down.Store(true)
	assert.Equal(t, http.StatusServiceUnavailable, a.call(http.MethodGet, "/api/health", "", nil, nil))
}

func TestUserRoutesCoexist(t *testing.T) {
	a := newApp(t)
	alice := a.signup("Alice")
	bob := a.signup("Bob")

	var me account
	require.Equal(t, http.StatusOK, a.call(http.MethodGet, "/api/user/me", alice.Token, nil, &me))
	assert.Equal(t, alice.ID, me.ID)

	var seen map[string]string
	require.Equal(t, http.StatusOK, a.call(http.MethodGet, "/api/user/"+bob.ID+"/last-seen", alice.Token, nil, &seen))
	assert.Equal(t, bob.ID, seen["user_id"])

	var found []account
	require.Equal(t, http.StatusOK, a.call(http.MethodGet, "/api/user?search=bo", alice.Token, nil, &found))
	require.Len(t, found, 1)
	assert.Equal(t, bob.ID, found[0].ID)

	assert.Equal(t, http.StatusUnauthorized, a.call(http.MethodGet, "/api/user/me", "", nil, nil))
}

// TestEndToEnd persists a message over REST, relays it over the socket and
// checks the recipient's reconciler and last-seen stamp.
func TestEndToEnd(t *testing.T) {
	a := newApp(t)
	alice, bob, eve := a.signup("Alice"), a.signup("Bob"), a.signup("Eve")

	var chat chatclient.Chat
	require.Equal(t, http.StatusOK, a.call(http.MethodPost, "/api/chat", alice.Token, gin.H{"userId": bob.ID}, &chat))

	bobRec := chatclient.NewReconciler(nil)
	aliceClient := a.dial(alice, nil)
	a.dial(bob, bobRec)
	eveClient := a.dial(eve, nil)

	var sent chatclient.Message
	require.Equal(t, http.StatusOK, a.call(http.MethodPost, "/api/message", alice.Token,
		gin.H{"content": "hello bob", "chatId": chat.ID}, &sent))
	require.Len(t, sent.Chat.Users, 2)

	require.NoError(t, aliceClient.OpenChat(chat.ID, nil))
	require.NoError(t, aliceClient.Publish(sent))
	require.Eventually(t, func() bool { return len(bobRec.Notifications()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "hello bob", bobRec.Notifications()[0].Content)

	// eve replays the payload as her own: the chat membership check stops it
	errs := make(chan string, 1)
	eveClient.OnError(func(p relay.ErrorPayload) { errs <- p.Message })
	forged := sent
	forged.ID = "forged"
	forged.Sender = chatclient.User{ID: eve.ID}
	require.NoError(t, eveClient.Publish(forged))
	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatal("forged message was not rejected")
	}
	assert.Len(t, bobRec.Notifications(), 1)

	var seen map[string]string
	require.Equal(t, http.StatusOK, a.call(http.MethodGet, "/api/user/"+bob.ID+"/last-seen", alice.Token, nil, &seen))
	assert.NotEmpty(t, seen["last_seen"], "setup records activity")

	var history []chatclient.Message
	require.Equal(t, http.StatusOK, a.call(http.MethodGet, "/api/message/"+chat.ID, bob.Token, nil, &history))
	require.Len(t, history, 1)
	assert.Equal(t, sent.ID, history[0].ID)
}
