package payment

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/telecare-api/internal/handler"
	"github.com/jwalitptl/telecare-api/internal/middleware"
	"github.com/jwalitptl/telecare-api/internal/model"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

// webhook bodies are small JSON documents
const maxWebhookBytes = 256 << 10

type Service interface {
	Checkout(ctx context.Context, p *model.Principal, req *model.CheckoutRequest) (*model.CheckoutResponse, error)
	Get(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Payment, error)
	CapturePayPal(ctx context.Context, p *model.Principal, orderID string) (*model.Payment, error)
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error
	HandlePaddleWebhook(ctx context.Context, payload []byte, signature string) error
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the authenticated payment routes. limit guards
// checkout creation per user.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware, limit gin.HandlerFunc) {
	payments := r.Group("/payments")
	{
		payments.POST("/checkout", auth.RequireRoles(model.RolePatient), limit, h.Checkout)
		payments.POST("/paypal/capture", auth.RequireRoles(model.RolePatient), limit, h.CapturePayPal)
		payments.GET("/:id", h.Get)
	}
}

// RegisterWebhooks mounts the unauthenticated provider callbacks. They are
// verified by signature instead.
func (h *Handler) RegisterWebhooks(r *gin.RouterGroup) {
	hooks := r.Group("/webhooks")
	{
		hooks.POST("/stripe", h.StripeWebhook)
		hooks.POST("/paddle", h.PaddleWebhook)
	}
}

func (h *Handler) Checkout(c *gin.Context) {
	var req model.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	resp, err := h.service.Checkout(c.Request.Context(), middleware.GetPrincipal(c), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.Created(c, resp)
}

func (h *Handler) CapturePayPal(c *gin.Context) {
	var req model.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	payment, err := h.service.CapturePayPal(c.Request.Context(), middleware.GetPrincipal(c), req.OrderID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, payment)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	payment, err := h.service.Get(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, payment)
}

func (h *Handler) StripeWebhook(c *gin.Context) {
	h.webhook(c, "Stripe-Signature", h.service.HandleStripeWebhook)
}

func (h *Handler) PaddleWebhook(c *gin.Context) {
	h.webhook(c, "Paddle-Signature", h.service.HandlePaddleWebhook)
}

// webhook hands the raw body to the service; signatures cover the exact bytes.
func (h *Handler) webhook(c *gin.Context, header string, handle func(context.Context, []byte, string) error) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		handler.RespondError(c, apperrors.NewBadRequest("unreadable body", err))
		return
	}

	if err := handle(c.Request.Context(), payload, c.GetHeader(header)); err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, gin.H{"received": true})
}
