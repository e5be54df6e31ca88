package httpx

import (
	"errors"
	"net/http"

	"github.com/ageniuscoder/chatrelay/backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

func OK(c *gin.Context, v any) {
	c.JSON(http.StatusOK, v)
}

func Created(c *gin.Context, v any) {
	c.JSON(http.StatusCreated, v)
}

func Err(c *gin.Context, code int, msg any) {
	c.JSON(code, gin.H{"error": msg})
}

// Fail writes err as a JSON error. *AppError keeps its status code,
// anything else is logged and reported as a 500.
func Fail(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Field != "" {
			c.JSON(appErr.Code, gin.H{"error": appErr.Message, "field": appErr.Field})
			return
		}
		Err(c, appErr.Code, appErr.Message)
		return
	}
	log.Error().Err(err).Str("path", c.FullPath()).Msg("http: internal error")
	Err(c, http.StatusInternalServerError, "internal server error")
}

// BindJSON decodes the body into dst and writes a 400 on failure.
func BindJSON(c *gin.Context, dst any) bool {
	return bound(c, c.ShouldBindJSON(dst))
}

// BindQuery decodes the query string into dst and writes a 400 on failure.
func BindQuery(c *gin.Context, dst any) bool {
	return bound(c, c.ShouldBindQuery(dst))
}

func bound(c *gin.Context, err error) bool {
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
		return false
	}
	Err(c, http.StatusBadRequest, err.Error())
	return false
}
