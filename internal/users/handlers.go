package users

import (
	"errors"
	"net/http"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/auth"
	"github.com/ageniuscoder/chatrelay/backend/internal/httpx"
	"github.com/ageniuscoder/chatrelay/backend/internal/otp"
	"github.com/ageniuscoder/chatrelay/backend/internal/storage"
	"github.com/gin-gonic/gin"
)

type Service struct {
	Store     Store
	OTP       *otp.Service
	JWTSecret string
	JWTTTL    time.Duration
}

type registerReq struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Pic      string `json:"pic"`
}

type verifyReq struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"` // send again on verify
	Pic      string `json:"pic"`
	OTP      string `json:"otp" binding:"required"`
}

type loginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginOTPReq struct {
	Email string `json:"email" binding:"required,email"`
}

type verifyLoginReq struct {
	Email string `json:"email" binding:"required,email"`
	OTP   string `json:"otp" binding:"required"`
}

type authResponse struct {
	User
	Token string `json:"token"`
}

func RegisterPublic(rg *gin.RouterGroup, s *Service) {
	rg.POST("", s.register)
	rg.POST("/verify", s.verify)
	rg.POST("/login", s.login)
	rg.POST("/login/otp", s.loginOTP)
	rg.POST("/verify-login-otp", s.verifyLoginOTP)
}

func RegisterProtected(rg *gin.RouterGroup, s *Service) {
	rg.GET("", s.search)
}

func (s *Service) issue(c *gin.Context, code int, u User) {
	tok, err := auth.NewToken(s.JWTSecret, u.ID, s.JWTTTL)
	if err != nil {
		httpx.Err(c, http.StatusInternalServerError, "Token Generation Failed")
		return
	}
	c.JSON(code, authResponse{User: u, Token: tok})
}

func (s *Service) register(c *gin.Context) {
	var req registerReq
	if !httpx.BindJSON(c, &req) {
		return
	}

	exists, err := s.Store.EmailExists(c.Request.Context(), req.Email)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	if exists {
		httpx.Err(c, http.StatusConflict, "User already exists")
		return
	}

	if _, err := s.OTP.Generate(c.Request.Context(), normalizeEmail(req.Email), otp.PurposeSignup); err != nil {
		httpx.Fail(c, err)
		return
	}

	httpx.OK(c, gin.H{"message": "OTP sent to email. Please verify to complete registration."})
}

func (s *Service) verify(c *gin.Context) {
	var req verifyReq
	if !httpx.BindJSON(c, &req) {
		return
	}

	ok, err := s.OTP.Verify(c.Request.Context(), normalizeEmail(req.Email), otp.PurposeSignup, req.OTP)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	if !ok {
		httpx.Err(c, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}

	u, err := s.Store.Create(c.Request.Context(), req.Name, req.Email, req.Password, req.Pic)
	if errors.Is(err, ErrEmailTaken) {
		httpx.Err(c, http.StatusConflict, "User already exists")
		return
	}
	if err != nil {
		httpx.Fail(c, err)
		return
	}

	s.issue(c, http.StatusCreated, u)
}

func (s *Service) login(c *gin.Context) {
	var req loginReq
	if !httpx.BindJSON(c, &req) {
		return
	}

	u, hash, err := s.Store.ByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.Err(c, http.StatusUnauthorized, "Invalid Email or Password")
		return
	}
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	if err := auth.CheckPassword(hash, req.Password); err != nil {
		httpx.Err(c, http.StatusUnauthorized, "Invalid Email or Password")
		return
	}

	s.issue(c, http.StatusOK, u)
}

func (s *Service) loginOTP(c *gin.Context) {
	var req loginOTPReq
	if !httpx.BindJSON(c, &req) {
		return
	}

	exists, err := s.Store.EmailExists(c.Request.Context(), req.Email)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	if !exists {
		httpx.Err(c, http.StatusNotFound, "User not found")
		return
	}

	if _, err := s.OTP.Generate(c.Request.Context(), normalizeEmail(req.Email), otp.PurposeLogin); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, gin.H{"message": "OTP sent to email"})
}

func (s *Service) verifyLoginOTP(c *gin.Context) {
	var req verifyLoginReq
	if !httpx.BindJSON(c, &req) {
		return
	}

	u, _, err := s.Store.ByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		httpx.Err(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		httpx.Fail(c, err)
		return
	}

	ok, err := s.OTP.Verify(c.Request.Context(), u.Email, otp.PurposeLogin, req.OTP)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	if !ok {
		httpx.Err(c, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}

	s.issue(c, http.StatusOK, u)
}

func (s *Service) search(c *gin.Context) {
	uid := auth.MustUserID(c)

	list, err := s.Store.Search(c.Request.Context(), c.Query("search"), uid, 20)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.OK(c, list)
}
