package profile

import (
	"errors"
	"net/http"

	"github.com/ageniuscoder/chatrelay/backend/internal/auth"
	"github.com/ageniuscoder/chatrelay/backend/internal/httpx"
	"github.com/ageniuscoder/chatrelay/backend/internal/storage"
	"github.com/ageniuscoder/chatrelay/backend/internal/users"
	"github.com/gin-gonic/gin"
)

type Service struct {
	Users users.Store
}

func Register(rg *gin.RouterGroup, s *Service) {
	rg.GET("/me", s.getMe)
}

func (s *Service) getMe(c *gin.Context) {
	uid := auth.MustUserID(c)
	if uid == "" {
		httpx.Err(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	u, err := s.Users.ByID(c.Request.Context(), uid)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.Err(c, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, u)
}
