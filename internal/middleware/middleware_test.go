package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/telecare-api/internal/handler"
	"github.com/jwalitptl/telecare-api/internal/model"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
	"github.com/jwalitptl/telecare-api/pkg/metrics"
	"github.com/jwalitptl/telecare-api/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuth struct {
	tokens   map[string]*model.Principal
	sessions map[string]*model.Principal
}

func (f *fakeAuth) PrincipalFromIDToken(_ context.Context, token string) (*model.Principal, error) {
	if p, ok := f.tokens[token]; ok {
		return p, nil
	}
	return nil, apperrors.NewUnauthorized("invalid or expired token", nil)
}

func (f *fakeAuth) PrincipalFromSession(_ context.Context, cookie string) (*model.Principal, error) {
	if p, ok := f.sessions[cookie]; ok {
		return p, nil
	}
	return nil, apperrors.NewSessionError("session expired", nil)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handler.Response {
	var resp handler.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func authRouter(auth *fakeAuth, roles ...model.Role) *gin.Engine {
	m := NewAuthMiddleware(auth, "session")
	r := gin.New()
	r.GET("/me", m.Authenticate(), m.RequireRoles(roles...), func(c *gin.Context) {
		handler.OK(c, GetPrincipal(c))
	})
	return r
}

func TestAuthenticate(t *testing.T) {
	patient := &model.Principal{UserID: uuid.New(), Role: model.RolePatient}
	auth := &fakeAuth{
		tokens:   map[string]*model.Principal{"good": patient},
		sessions: map[string]*model.Principal{"sealed": patient},
	}

	tests := []struct {
		name    string
		header  string
		cookie  string
		status  int
		message string
	}{
		{"bearer", "Bearer good", "", http.StatusOK, ""},
		{"session cookie", "", "sealed", http.StatusOK, ""},
		{"bearer wins over cookie", "Bearer good", "stale", http.StatusOK, ""},
		{"missing credentials", "", "", http.StatusUnauthorized, "authentication required"},
		{"bad scheme", "Basic abc", "", http.StatusUnauthorized, "invalid authorization format"},
		{"bad token", "Bearer nope", "", http.StatusUnauthorized, "invalid or expired token"},
		{"expired session", "", "stale", http.StatusUnauthorized, "session expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "session", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			authRouter(auth).ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			resp := decode(t, w)
			if tt.status == http.StatusOK {
				assert.Equal(t, "success", resp.Status)
			} else {
				assert.Equal(t, "error", resp.Status)
				assert.Equal(t, tt.message, resp.Message)
			}
		})
	}
}

func TestRequireRoles(t *testing.T) {
	doctor := &model.Principal{UserID: uuid.New(), Role: model.RoleDoctor}
	admin := &model.Principal{UserID: uuid.New(), Role: model.RoleAdmin}
	patient := &model.Principal{UserID: uuid.New(), Role: model.RolePatient}
	auth := &fakeAuth{tokens: map[string]*model.Principal{"doc": doctor, "admin": admin, "pat": patient}}
	r := authRouter(auth, model.RoleDoctor)

	for token, want := range map[string]int{"doc": http.StatusOK, "admin": http.StatusOK, "pat": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, token)
	}
}

func TestSlidingWindowRateLimit(t *testing.T) {
	m := metrics.New("test", nil)
	limiter := ratelimit.NewSlidingWindow(2, time.Minute, 100)
	r := gin.New()
	r.POST("/auth/login", SlidingWindowRateLimit(limiter, "auth", KeyByIP, m), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1").Code)
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1").Code)
	w := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "too many requests", decode(t, w).Message)

	// other callers are unaffected
	assert.Equal(t, http.StatusNoContent, send("10.0.0.2").Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimited.WithLabelValues("auth")))
}

func TestGlobalRateLimit(t *testing.T) {
	m := metrics.New("test", nil)
	rl := NewRateLimiter(RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 1}, m)
	r := gin.New()
	r.Use(rl.RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimited.WithLabelValues("global")))
}

func TestErrorHandlerRendersUnwrittenErrors(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler())
	r.GET("/conflict", func(c *gin.Context) {
		_ = c.Error(apperrors.NewAppointmentError(apperrors.AppointmentSlotTaken, "slot is already booked"))
	})
	r.GET("/internal", func(c *gin.Context) {
		_ = c.Error(errors.New("pq: connection refused"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conflict", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "slot is already booked", decode(t, w).Message)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode(t, w).Message)
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "error", decode(t, w).Status)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, strings.Repeat("x", 200))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	_, err := uuid.Parse(w.Header().Get(HeaderXRequestID))
	assert.NoError(t, err)
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(SizeLimit(SizeLimitConfig{MaxBodySize: 16, MaxUploadSize: 1024}))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 64)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("a", 64)))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestValidators(t *testing.T) {
	require.NoError(t, RegisterValidators())

	r := gin.New()
	r.POST("/", func(c *gin.Context) {
		var req model.CreateAppointmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			handler.BindError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	body := `{"doctor_id":"` + uuid.NewString() + `","preferred_date":"2026-13-01","preferred_time":"25:00","reason":"x"}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	msg := decode(t, w).Message
	assert.Contains(t, msg, "preferred_date must be YYYY-MM-DD")
	assert.Contains(t, msg, "preferred_time must be HH:MM")

	body = `{"doctor_id":"` + uuid.NewString() + `","preferred_date":"2026-12-01","preferred_time":"09:30","reason":"x"}`
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
