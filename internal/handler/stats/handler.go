package stats

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telecare-api/internal/handler"
	"github.com/jwalitptl/telecare-api/internal/middleware"
	"github.com/jwalitptl/telecare-api/internal/model"
)

type Service interface {
	Get(ctx context.Context, p *model.Principal) (*model.Stats, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	r.GET("/stats", auth.RequireRoles(model.RoleDoctor, model.RoleClinic), h.Get)
}

func (h *Handler) Get(c *gin.Context) {
	st, err := h.service.Get(c.Request.Context(), middleware.GetPrincipal(c))
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, st)
}
