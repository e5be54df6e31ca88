package feature

import (
	"errors"
	"net/http"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/httpx"
	"github.com/ageniuscoder/chatrelay/backend/internal/storage"
	"github.com/ageniuscoder/chatrelay/backend/internal/users"
	"github.com/gin-gonic/gin"
)

type Service struct {
	Users users.Store
}

type lastSeenResp struct {
	UserID   string `json:"user_id"`
	LastSeen string `json:"last_seen,omitempty"`
}

func Register(rg *gin.RouterGroup, s *Service) {
	rg.GET("/:id/last-seen", s.getLastSeen)
}

// getLastSeen reports when the user was last active over the socket. Users
// who never connected have no last_seen.
func (s *Service) getLastSeen(c *gin.Context) {
	u, err := s.Users.ByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		httpx.Err(c, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		httpx.Fail(c, err)
		return
	}

	resp := lastSeenResp{UserID: u.ID}
	if u.LastActive != nil {
		resp.LastSeen = u.LastActive.UTC().Format(time.RFC3339)
	}
	httpx.OK(c, resp)
}
