package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestFail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"app error", NotFound("chat not found"), http.StatusNotFound, `{"error":"chat not found"}`},
		{"app error with field", BadRequest("bad id", "chatId"), http.StatusBadRequest, `{"error":"bad id","field":"chatId"}`},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, `{"error":"internal server error"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Fail(c, tc.err)

			assert.Equal(t, tc.code, w.Code)
			assert.JSONEq(t, tc.body, w.Body.String())
		})
	}
}

func TestBindJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	type req struct {
		Email string `json:"email" binding:"required,email"`
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var dst req
	assert.False(t, BindJSON(c, &dst))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "valid email")
}
