package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"backoffice/internal/backend"
	"backoffice/internal/form"
	"backoffice/internal/screen"
)

// Коды ошибок ответа
const (
	ErrCodeNotFound   = "not_found"
	ErrCodeReadonly   = "readonly"
	ErrCodeNotOpen    = "not_open"
	ErrCodeBadRequest = "bad_request"
	ErrCodeBackend    = "backend_error"
	ErrCodeInternal   = "internal"
)

func errorBody(code, field, message string) gin.H {
	return gin.H{"errors": []form.FieldError{{Code: code, Field: field, Message: message}}}
}

func badRequest(c *gin.Context, field, message string) {
	c.JSON(http.StatusBadRequest, errorBody(ErrCodeBadRequest, field, message))
}

// writeError переводит ошибку экрана в HTTP-ответ {"errors":[...]}.
func writeError(c *gin.Context, err error) {
	var verr *screen.ValidationError
	var rerr *backend.ResultError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Errors})
	case errors.Is(err, screen.ErrUnknownScreen):
		c.JSON(http.StatusNotFound, errorBody(ErrCodeNotFound, "screen", err.Error()))
	case errors.Is(err, screen.ErrUnknownField):
		c.JSON(http.StatusNotFound, errorBody(ErrCodeNotFound, "field", err.Error()))
	case errors.Is(err, screen.ErrReadonly):
		c.JSON(http.StatusConflict, errorBody(ErrCodeReadonly, "", err.Error()))
	case errors.Is(err, screen.ErrNotOpen):
		c.JSON(http.StatusConflict, errorBody(ErrCodeNotOpen, "", err.Error()))
	case errors.Is(err, screen.ErrCreateMode),
		errors.Is(err, screen.ErrNoKey),
		errors.Is(err, screen.ErrNotUpload),
		errors.Is(err, screen.ErrTooManyFiles),
		errors.Is(err, screen.ErrFileIndex),
		errors.Is(err, form.ErrNotOptions),
		errors.Is(err, form.ErrRowIndex),
		errors.Is(err, form.ErrRowLimit):
		c.JSON(http.StatusBadRequest, errorBody(ErrCodeBadRequest, "", err.Error()))
	case errors.As(err, &rerr):
		c.JSON(http.StatusBadGateway, gin.H{"errors": []form.FieldError{{
			Code:    ErrCodeBackend,
			Field:   rerr.Code,
			Message: rerr.Message(),
		}}})
	default:
		c.JSON(http.StatusInternalServerError, errorBody(ErrCodeInternal, "", err.Error()))
	}
}
