package httpx

import "net/http"

type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(code int, msg, field string) *AppError {
	return &AppError{
		Code:    code,
		Message: msg,
		Field:   field,
	}
}

func BadRequest(msg, field string) *AppError {
	return NewAppError(http.StatusBadRequest, msg, field)
}

func NotFound(msg string) *AppError {
	return NewAppError(http.StatusNotFound, msg, "")
}

func Forbidden(msg string) *AppError {
	return NewAppError(http.StatusForbidden, msg, "")
}
