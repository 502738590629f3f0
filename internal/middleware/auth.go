package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/telecare-api/internal/handler"
	"github.com/jwalitptl/telecare-api/internal/model"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

const (
	ContextPrincipal = "principal"
	ContextUserID    = "user_id"
)

// Authenticator resolves request credentials to a principal.
type Authenticator interface {
	PrincipalFromIDToken(ctx context.Context, token string) (*model.Principal, error)
	PrincipalFromSession(ctx context.Context, cookie string) (*model.Principal, error)
}

type AuthMiddleware struct {
	auth       Authenticator
	cookieName string
}

func NewAuthMiddleware(auth Authenticator, cookieName string) *AuthMiddleware {
	if cookieName == "" {
		cookieName = "session"
	}
	return &AuthMiddleware{auth: auth, cookieName: cookieName}
}

// Authenticate accepts a bearer ID token or a session cookie. The bearer
// token wins when both are present.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			principal *model.Principal
			err       error
		)

		if header := c.GetHeader("Authorization"); header != "" {
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				handler.RespondError(c, apperrors.NewUnauthorized("invalid authorization format", nil))
				return
			}
			principal, err = m.auth.PrincipalFromIDToken(c.Request.Context(), token)
		} else if cookie, cerr := c.Cookie(m.cookieName); cerr == nil && cookie != "" {
			principal, err = m.auth.PrincipalFromSession(c.Request.Context(), cookie)
		} else {
			handler.RespondError(c, apperrors.NewUnauthorized("authentication required", nil))
			return
		}

		if err != nil {
			handler.RespondError(c, err)
			return
		}

		c.Set(ContextPrincipal, principal)
		c.Set(ContextUserID, principal.UserID.String())
		c.Next()
	}
}

// RequireRoles rejects principals outside roles. Admins always pass.
func (m *AuthMiddleware) RequireRoles(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil {
			handler.RespondError(c, apperrors.NewUnauthorized("authentication required", nil))
			return
		}
		if p.IsAdmin() {
			c.Next()
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		handler.RespondError(c, apperrors.NewForbidden("insufficient permissions"))
	}
}

// GetPrincipal returns the authenticated caller, or nil on public routes.
func GetPrincipal(c *gin.Context) *model.Principal {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*model.Principal)
	return p
}
