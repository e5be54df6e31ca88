package messages

import (
	"github.com/ageniuscoder/chatrelay/backend/internal/auth"
	"github.com/ageniuscoder/chatrelay/backend/internal/httpx"
	"github.com/gin-gonic/gin"
)

type Service struct {
	Store Store
}

type sendReq struct {
	Content string `json:"content" binding:"required"`
	ChatID  string `json:"chatId" binding:"required"`
}

type pageReq struct {
	Limit int `form:"limit" binding:"min=0"`
}

func Register(rg *gin.RouterGroup, s *Service) {
	rg.POST("", s.send)
	rg.GET("/:chatId", s.list)
}

func (s *Service) send(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req sendReq
	if !httpx.BindJSON(c, &req) {
		return
	}

	msg, err := s.Store.Send(c.Request.Context(), uid, req.ChatID, req.Content)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, msg)
}

func (s *Service) list(c *gin.Context) {
	uid := auth.MustUserID(c)
	var q pageReq
	if !httpx.BindQuery(c, &q) {
		return
	}

	list, err := s.Store.List(c.Request.Context(), uid, c.Param("chatId"), q.Limit)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, list)
}
