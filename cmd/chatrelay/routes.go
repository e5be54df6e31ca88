package main

import (
	"context"
	"net/http"
	"time"

	"github.com/ageniuscoder/chatrelay/backend/internal/auth"
	"github.com/ageniuscoder/chatrelay/backend/internal/chats"
	"github.com/ageniuscoder/chatrelay/backend/internal/feature"
	"github.com/ageniuscoder/chatrelay/backend/internal/httpx"
	"github.com/ageniuscoder/chatrelay/backend/internal/mailer"
	"github.com/ageniuscoder/chatrelay/backend/internal/messages"
	"github.com/ageniuscoder/chatrelay/backend/internal/otp"
	"github.com/ageniuscoder/chatrelay/backend/internal/profile"
	"github.com/ageniuscoder/chatrelay/backend/internal/relay"
	"github.com/ageniuscoder/chatrelay/backend/internal/storage"
	"github.com/ageniuscoder/chatrelay/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type deps struct {
	DB              *storage.DB
	Ping            func(context.Context) error
	OTPStore        otp.Store
	Mailer          mailer.Sender
	OTPDigits       int
	OTPTTL          time.Duration
	JWTSecret       string
	JWTTTL          time.Duration
	WSAllowedOrigin string
	// Registry is shared with main so shutdown can close live sockets.
	Registry *relay.Registry
}

// requestLogger logs one line per request through zerolog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("http: request")
	}
}

func newRouter(d deps) *gin.Engine {
	userStore := users.Store{DB: d.DB}
	chatStore := chats.Store{DB: d.DB}

	reg := d.Registry
	if reg == nil {
		reg = relay.NewRegistry()
	}
	hub := relay.New(reg, chatStore, userStore)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := d.Ping(ctx); err != nil {
			log.Error().Err(err).Msg("health: storage ping failed")
			httpx.Err(c, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		httpx.OK(c, gin.H{"status": "ok", "relay": hub.Registry.Stats()})
	})

	userSvc := &users.Service{
		Store: userStore,
		OTP: &otp.Service{
			Store:  d.OTPStore,
			Mailer: d.Mailer,
			Digits: d.OTPDigits,
			TTL:    d.OTPTTL,
		},
		JWTSecret: d.JWTSecret,
		JWTTTL:    d.JWTTTL,
	}
	users.RegisterPublic(api.Group("/user"), userSvc)

	protected := api.Group("", auth.JWTMiddleware(d.JWTSecret))
	userGroup := protected.Group("/user")
	users.RegisterProtected(userGroup, userSvc)
	profile.Register(userGroup, &profile.Service{Users: userStore})
	feature.Register(userGroup, &feature.Service{Users: userStore})
	chats.Register(protected.Group("/chat"), &chats.Service{Store: chatStore})
	messages.Register(protected.Group("/message"), &messages.Service{Store: messages.Store{DB: d.DB}})

	relay.RegisterWS(r, hub, d.JWTSecret, d.WSAllowedOrigin)
	return r
}
