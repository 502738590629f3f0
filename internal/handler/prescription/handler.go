package prescription

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/handler"
	"github.com/jwalitptl/telecare-api/internal/middleware"
	"github.com/jwalitptl/telecare-api/internal/model"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

type Service interface {
	Issue(ctx context.Context, p *model.Principal, req *model.CreatePrescriptionRequest) (*model.Prescription, error)
	List(ctx context.Context, p *model.Principal, filters *model.PrescriptionFilters) ([]*model.Prescription, int64, error)
	Get(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Prescription, error)
	Dispense(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Prescription, error)
	Cancel(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Prescription, error)
	UploadAttachment(ctx context.Context, p *model.Principal, id uuid.UUID, filename string, data []byte) (*model.Prescription, error)
	AttachmentURL(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.AttachmentURL, error)
}

type Handler struct {
	service        Service
	maxUploadBytes int64
}

func NewHandler(service Service, maxUploadBytes int64) *Handler {
	return &Handler{service: service, maxUploadBytes: maxUploadBytes}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	rx := r.Group("/prescriptions")
	{
		rx.POST("", auth.RequireRoles(model.RoleDoctor), h.Issue)
		rx.GET("", h.List)
		rx.GET("/:id", h.Get)
		rx.POST("/:id/dispense", auth.RequireRoles(model.RolePharmacy), h.Dispense)
		rx.POST("/:id/cancel", auth.RequireRoles(model.RoleDoctor), h.Cancel)
		rx.POST("/:id/attachment", auth.RequireRoles(model.RoleDoctor), h.UploadAttachment)
		rx.GET("/:id/attachment", h.Attachment)
	}
}

func (h *Handler) Issue(c *gin.Context) {
	var req model.CreatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	rx, err := h.service.Issue(c.Request.Context(), middleware.GetPrincipal(c), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.Created(c, rx)
}

func (h *Handler) List(c *gin.Context) {
	var filters model.PrescriptionFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
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

func (h *Handler) Get(c *gin.Context) {
	h.byID(c, h.service.Get)
}

func (h *Handler) Dispense(c *gin.Context) {
	h.byID(c, h.service.Dispense)
}

func (h *Handler) Cancel(c *gin.Context) {
	h.byID(c, h.service.Cancel)
}

func (h *Handler) byID(c *gin.Context, fn func(context.Context, *model.Principal, uuid.UUID) (*model.Prescription, error)) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	rx, err := fn(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, rx)
}

// UploadAttachment accepts a multipart form with the file in "file".
func (h *Handler) UploadAttachment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		handler.RespondError(c, apperrors.NewBadRequest("file is required", err))
		return
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, handler.NewErrorResponse("file too large"))
		return
	}

	f, err := fh.Open()
	if err != nil {
		handler.RespondError(c, apperrors.NewBadRequest("unreadable file", err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		handler.RespondError(c, apperrors.NewBadRequest("unreadable file", err))
		return
	}

	rx, err := h.service.UploadAttachment(c.Request.Context(), middleware.GetPrincipal(c), id, fh.Filename, data)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, rx)
}

// Attachment returns a presigned download link.
func (h *Handler) Attachment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	url, err := h.service.AttachmentURL(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, url)
}
