package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telecare-api/internal/handler"
	"github.com/jwalitptl/telecare-api/internal/middleware"
	"github.com/jwalitptl/telecare-api/internal/model"
)

type Service interface {
	Register(ctx context.Context, req *model.RegisterRequest) (*model.TokenResponse, error)
	Login(ctx context.Context, req *model.LoginRequest) (*model.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*model.TokenResponse, error)
	CreateSession(ctx context.Context, idToken, ipAddress, userAgent string) (string, *model.Session, error)
	Logout(ctx context.Context, principal *model.Principal) error
}

type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
}

type Handler struct {
	svc    Service
	cookie CookieConfig
}

func NewHandler(svc Service, cookie CookieConfig) *Handler {
	if cookie.Name == "" {
		cookie.Name = "session"
	}
	return &Handler{svc: svc, cookie: cookie}
}

// RegisterRoutes mounts the public endpoints. limit guards them per client
// address; logout needs authentication and is mounted by the router.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, limit gin.HandlerFunc) {
	auth := r.Group("/auth", limit)
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/session", h.CreateSession)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	resp, err := h.svc.Register(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.Created(c, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, resp)
}

func (h *Handler) Refresh(c *gin.Context) {
	var req model.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	resp, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	handler.OK(c, resp)
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req model.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BindError(c, err)
		return
	}

	cookie, session, err := h.svc.CreateSession(c.Request.Context(), req.IDToken, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		handler.RespondError(c, err)
		return
	}

	h.setCookie(c, cookie, int(time.Until(session.ExpiresAt).Seconds()))
	handler.OK(c, model.SessionResponse{SessionID: session.ID, ExpiresAt: session.ExpiresAt})
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), middleware.GetPrincipal(c)); err != nil {
		handler.RespondError(c, err)
		return
	}
	h.setCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}
