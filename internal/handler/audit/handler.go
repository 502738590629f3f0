package audit

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telecare-api/internal/handler"
	"github.com/jwalitptl/telecare-api/internal/model"
)

type Service interface {
	List(ctx context.Context, filters *model.AuditLogFilters) ([]*model.AuditLog, int64, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes mounts on an admin-only group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit-logs", h.ListLogs)
}

func (h *Handler) ListLogs(c *gin.Context) {
	var filters model.AuditLogFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		handler.BindError(c, err)
		return
	}

	logs, total, err := h.service.List(c.Request.Context(), &filters)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	page := filters.Pagination.Normalize()
	handler.OK(c, handler.Page{Items: logs, Total: total, Page: page.Page, PageSize: page.PageSize})
}
