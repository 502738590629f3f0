package video

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/handler"
	"github.com/jwalitptl/telecare-api/internal/middleware"
	"github.com/jwalitptl/telecare-api/internal/model"
)

type Service interface {
	Token(ctx context.Context, p *model.Principal, appointmentID uuid.UUID) (*model.VideoToken, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/video/appointments/:id/token", h.Token)
}

func (h *Handler) Token(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	tok, err := h.service.Token(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, tok)
}
