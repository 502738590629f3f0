package user

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/handler"
	"github.com/jwalitptl/telecare-api/internal/middleware"
	"github.com/jwalitptl/telecare-api/internal/model"
)

type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, req *model.UpdateProfileRequest) (*model.User, error)
	Directory(ctx context.Context, role model.Role, page model.Pagination) ([]*model.UserSummary, error)
	List(ctx context.Context, filters *model.UserFilters) ([]*model.User, int64, error)
	Create(ctx context.Context, actor uuid.UUID, req *model.CreateUserRequest) (*model.User, error)
	SetStatus(ctx context.Context, actor, id uuid.UUID, status string) error
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts self-service and directory routes on an
// authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("/me", h.Me)
		users.PUT("/me", h.UpdateMe)
	}
	r.GET("/doctors", h.Directory(model.RoleDoctor))
	r.GET("/clinics", h.Directory(model.RoleClinic))
	r.GET("/pharmacies", h.Directory(model.RolePharmacy))
}

// RegisterAdminRoutes mounts account management on an admin-only group.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("", h.List)
		users.POST("", h.Create)
		users.PATCH("/:id/status", h.SetStatus)
	}
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.service.Get(c.Request.Context(), middleware.GetPrincipal(c).UserID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, user)
}

func (h *Handler) UpdateMe(c *gin.Context) {
	var req model.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), middleware.GetPrincipal(c).UserID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, user)
}

func (h *Handler) Directory(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var page model.Pagination
		if err := c.ShouldBindQuery(&page); err != nil {
			handler.BindError(c, err)
			return
		}

		entries, err := h.service.Directory(c.Request.Context(), role, page)
		if err != nil {
			handler.RespondError(c, err)
			return
		}
		handler.OK(c, entries)
	}
}

func (h *Handler) List(c *gin.Context) {
	var filters model.UserFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		handler.BindError(c, err)
		return
	}

	users, total, err := h.service.List(c.Request.Context(), &filters)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	page := filters.Pagination.Normalize()
	handler.OK(c, handler.Page{Items: users, Total: total, Page: page.Page, PageSize: page.PageSize})
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	user, err := h.service.Create(c.Request.Context(), middleware.GetPrincipal(c).UserID, &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.Created(c, user)
}

func (h *Handler) SetStatus(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	if err := h.service.SetStatus(c.Request.Context(), middleware.GetPrincipal(c).UserID, id, req.Status); err != nil {
		handler.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
