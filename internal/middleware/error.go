package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/telecare-api/internal/handler"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

// ErrorHandler logs errors attached to the context and renders the last one
// when the handler did not write a response itself.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		for _, e := range c.Errors {
			status := apperrors.StatusOf(e.Err)
			level := zerolog.WarnLevel
			if status >= 500 {
				level = zerolog.ErrorLevel
			}
			log.WithLevel(level).
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Int("status", status).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}
		last := c.Errors.Last().Err
		c.JSON(apperrors.StatusOf(last), handler.NewErrorResponse(apperrors.PublicMessage(last)))
	}
}
