package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/kiliankoe/pokerdash/internal/game"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func abortError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: http.StatusText(status), Message: message})
}

// writeError maps engine errors onto HTTP statuses. Unexpected errors are
// logged and hidden from the client.
func writeError(c *gin.Context, err error) {
	switch {
	case game.IsNotFound(err):
		abortError(c, http.StatusNotFound, err.Error())
	case game.IsValidation(err):
		abortError(c, http.StatusBadRequest, err.Error())
	case game.IsConflict(err):
		abortError(c, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		abortError(c, http.StatusInternalServerError, "internal server error")
	}
}

func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", ")))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
