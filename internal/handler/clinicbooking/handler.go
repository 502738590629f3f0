package clinicbooking

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/handler"
	"github.com/jwalitptl/telecare-api/internal/middleware"
	"github.com/jwalitptl/telecare-api/internal/model"
)

type Service interface {
	Create(ctx context.Context, p *model.Principal, req *model.CreateClinicBookingRequest) (*model.ClinicBooking, error)
	List(ctx context.Context, p *model.Principal, filters *model.ClinicBookingFilters) ([]*model.ClinicBooking, int64, error)
	Get(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.ClinicBooking, error)
	Accept(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.ClinicBooking, error)
	Reject(ctx context.Context, p *model.Principal, id uuid.UUID, reason string) (*model.ClinicBooking, error)
	Complete(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.ClinicBooking, error)
	Cancel(ctx context.Context, p *model.Principal, id uuid.UUID, reason string) (*model.ClinicBooking, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	bookings := r.Group("/clinic-bookings")
	{
		bookings.POST("", auth.RequireRoles(model.RolePatient), h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
		bookings.POST("/:id/accept", auth.RequireRoles(model.RoleClinic), h.AcceptBooking)
		bookings.POST("/:id/reject", auth.RequireRoles(model.RoleClinic), h.RejectBooking)
		bookings.POST("/:id/complete", auth.RequireRoles(model.RoleClinic), h.CompleteBooking)
		bookings.POST("/:id/cancel", h.CancelBooking)
	}
}

func (h *Handler) CreateBooking(c *gin.Context) {
	var req model.CreateClinicBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	booking, err := h.service.Create(c.Request.Context(), middleware.GetPrincipal(c), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.Created(c, booking)
}

func (h *Handler) ListBookings(c *gin.Context) {
	var filters model.ClinicBookingFilters
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

func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	booking, err := h.service.Get(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, booking)
}

func (h *Handler) AcceptBooking(c *gin.Context) {
	h.transition(c, func(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.ClinicBooking, error) {
		return h.service.Accept(ctx, p, id)
	})
}

func (h *Handler) CompleteBooking(c *gin.Context) {
	h.transition(c, func(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.ClinicBooking, error) {
		return h.service.Complete(ctx, p, id)
	})
}

func (h *Handler) RejectBooking(c *gin.Context) {
	var req model.RejectRequest
	if err := handler.BindOptionalJSON(c, &req); err != nil {
		handler.BindError(c, err)
		return
	}
	h.transition(c, func(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.ClinicBooking, error) {
		return h.service.Reject(ctx, p, id, req.Reason)
	})
}

func (h *Handler) CancelBooking(c *gin.Context) {
	var req model.CancelRequest
	if err := handler.BindOptionalJSON(c, &req); err != nil {
		handler.BindError(c, err)
		return
	}
	h.transition(c, func(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.ClinicBooking, error) {
		return h.service.Cancel(ctx, p, id, req.Reason)
	})
}

func (h *Handler) transition(c *gin.Context, fn func(context.Context, *model.Principal, uuid.UUID) (*model.ClinicBooking, error)) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	booking, err := fn(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, booking)
}
