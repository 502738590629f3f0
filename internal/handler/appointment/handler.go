package appointment

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/handler"
	"github.com/jwalitptl/telecare-api/internal/middleware"
	"github.com/jwalitptl/telecare-api/internal/model"
)

type Service interface {
	Create(ctx context.Context, p *model.Principal, req *model.CreateAppointmentRequest) (*model.Appointment, error)
	List(ctx context.Context, p *model.Principal, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error)
	Get(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Appointment, error)
	Accept(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Appointment, error)
	Reject(ctx context.Context, p *model.Principal, id uuid.UUID, reason string) (*model.Appointment, error)
	Complete(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Appointment, error)
	Cancel(ctx context.Context, p *model.Principal, id uuid.UUID, reason string) (*model.Appointment, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("", auth.RequireRoles(model.RolePatient), h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.POST("/:id/accept", auth.RequireRoles(model.RoleDoctor), h.AcceptAppointment)
		appointments.POST("/:id/reject", auth.RequireRoles(model.RoleDoctor), h.RejectAppointment)
		appointments.POST("/:id/complete", auth.RequireRoles(model.RoleDoctor), h.CompleteAppointment)
		appointments.POST("/:id/cancel", h.CancelAppointment)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	apt, err := h.service.Create(c.Request.Context(), middleware.GetPrincipal(c), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.Created(c, apt)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	var filters model.AppointmentFilters
	if err := c.ShouldBindQuery(&filters.BookingFilters); err != nil {
		handler.BindError(c, err)
		return
	}

	items, total, err := h.service.List(c.Request.Context(), middleware.GetPrincipal(c), &filters)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	page := filters.Pagination.Normalize()
	handler.OK(c, handler.Page{Items: items, Total: total, Page: page.Page, PageSize: page.PageSize})
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	apt, err := h.service.Get(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, apt)
}

func (h *Handler) AcceptAppointment(c *gin.Context) {
	h.transition(c, func(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Appointment, error) {
		return h.service.Accept(ctx, p, id)
	})
}

func (h *Handler) CompleteAppointment(c *gin.Context) {
	h.transition(c, func(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Appointment, error) {
		return h.service.Complete(ctx, p, id)
	})
}

func (h *Handler) RejectAppointment(c *gin.Context) {
	var req model.RejectRequest
	if err := handler.BindOptionalJSON(c, &req); err != nil {
		handler.BindError(c, err)
		return
	}
	h.transition(c, func(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Appointment, error) {
		return h.service.Reject(ctx, p, id, req.Reason)
	})
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	var req model.CancelRequest
	if err := handler.BindOptionalJSON(c, &req); err != nil {
		handler.BindError(c, err)
		return
	}
	h.transition(c, func(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Appointment, error) {
		return h.service.Cancel(ctx, p, id, req.Reason)
	})
}

func (h *Handler) transition(c *gin.Context, fn func(context.Context, *model.Principal, uuid.UUID) (*model.Appointment, error)) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	apt, err := fn(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, apt)
}
