package chats

import (
	"github.com/ageniuscoder/chatrelay/backend/internal/auth"
	"github.com/ageniuscoder/chatrelay/backend/internal/httpx"
	"github.com/gin-gonic/gin"
)

type Service struct {
	Store Store
}

type accessReq struct {
	UserID string `json:"userId" binding:"required"`
}

type groupReq struct {
	Name  string   `json:"name" binding:"required"`
	Users []string `json:"users" binding:"required"`
}

type renameReq struct {
	ChatID   string `json:"chatId" binding:"required"`
	ChatName string `json:"chatName" binding:"required"`
}

type memberReq struct {
	ChatID string `json:"chatId" binding:"required"`
	UserID string `json:"userId" binding:"required"`
}

func Register(rg *gin.RouterGroup, s *Service) {
	rg.POST("", s.access)
	rg.GET("", s.listMine)
	rg.POST("/group", s.createGroup)
	rg.PUT("/rename", s.rename)
	rg.PUT("/groupadd", s.addToGroup)
	rg.PUT("/groupremove", s.removeFromGroup)
}

func (s *Service) access(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req accessReq
	if !httpx.BindJSON(c, &req) {
		return
	}

	chat, err := s.Store.Access(c.Request.Context(), uid, req.UserID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, chat)
}

func (s *Service) listMine(c *gin.Context) {
	uid := auth.MustUserID(c)

	list, err := s.Store.ListForUser(c.Request.Context(), uid)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, list)
}

func (s *Service) createGroup(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req groupReq
	if !httpx.BindJSON(c, &req) {
		return
	}

	chat, err := s.Store.CreateGroup(c.Request.Context(), uid, req.Name, req.Users)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, chat)
}

func (s *Service) rename(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req renameReq
	if !httpx.BindJSON(c, &req) {
		return
	}

	chat, err := s.Store.Rename(c.Request.Context(), uid, req.ChatID, req.ChatName)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, chat)
}

func (s *Service) addToGroup(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req memberReq
	if !httpx.BindJSON(c, &req) {
		return
	}

	chat, err := s.Store.AddMember(c.Request.Context(), uid, req.ChatID, req.UserID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, chat)
}

func (s *Service) removeFromGroup(c *gin.Context) {
	uid := auth.MustUserID(c)
	var req memberReq
	if !httpx.BindJSON(c, &req) {
		return
	}

	chat, err := s.Store.RemoveMember(c.Request.Context(), uid, req.ChatID, req.UserID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, chat)
}
