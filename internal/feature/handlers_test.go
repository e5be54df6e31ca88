package feature

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/storage/storagetest"
	"github.com/ageniuscoder/chatrelay/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastSeen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := users.Store{DB: storagetest.NewDB(t)}
	ctx := context.Background()
	u, err := store.Create(ctx, "Bob", "bob@example.com", "secret1", "")
	require.NoError(t, err)

	r := gin.New()
	Register(r.Group("/api/user"), &Service{Users: store})
	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/api/user/" + u.ID + "/last-seen")
	require.Equal(t, http.StatusOK, w.Code)
	var resp lastSeenResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, u.ID, resp.UserID)
	assert.Empty(t, resp.LastSeen, "never connected")

	require.NoError(t, store.Touch(ctx, u.ID))
	w = get("/api/user/" + u.ID + "/last-seen")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	seen, err := time.Parse(time.RFC3339, resp.LastSeen)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), seen, 5*time.Second)

	assert.Equal(t, http.StatusNotFound, get("/api/user/ghost/last-seen").Code)
}
