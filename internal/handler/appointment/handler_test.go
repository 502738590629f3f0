package appointment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telecare-api/internal/handler"
	"github.com/jwalitptl/telecare-api/internal/middleware"
	"github.com/jwalitptl/telecare-api/internal/model"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type tokens map[string]*model.Principal

func (t tokens) PrincipalFromIDToken(_ context.Context, token string) (*model.Principal, error) {
	if p, ok := t[token]; ok {
		return p, nil
	}
	return nil, apperrors.NewUnauthorized("invalid or expired token", nil)
}

func (t tokens) PrincipalFromSession(context.Context, string) (*model.Principal, error) {
	return nil, apperrors.NewSessionError("session expired", nil)
}

type fakeService struct {
	created *model.CreateAppointmentRequest
	filters *model.AppointmentFilters
	reason  string
	err     error
}

func (f *fakeService) Create(_ context.Context, p *model.Principal, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	apt := &model.Appointment{DoctorID: req.DoctorID}
	apt.ID = uuid.New()
	apt.PatientID = p.UserID
	apt.Status = model.BookingStatusPending
	return apt, nil
}

func (f *fakeService) List(_ context.Context, _ *model.Principal, filters *model.AppointmentFilters) ([]*model.Appointment, int64, error) {
	f.filters = filters
	return []*model.Appointment{{}}, 1, f.err
}

func (f *fakeService) Get(_ context.Context, _ *model.Principal, id uuid.UUID) (*model.Appointment, error) {
	if f.err != nil {
		return nil, f.err
	}
	apt := &model.Appointment{}
	apt.ID = id
	return apt, nil
}

func (f *fakeService) Accept(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Appointment, error) {
	return f.Get(ctx, p, id)
}

func (f *fakeService) Reject(ctx context.Context, p *model.Principal, id uuid.UUID, reason string) (*model.Appointment, error) {
	f.reason = reason
	return f.Get(ctx, p, id)
}

func (f *fakeService) Complete(ctx context.Context, p *model.Principal, id uuid.UUID) (*model.Appointment, error) {
	return f.Get(ctx, p, id)
}

func (f *fakeService) Cancel(ctx context.Context, p *model.Principal, id uuid.UUID, reason string) (*model.Appointment, error) {
	f.reason = reason
	return f.Get(ctx, p, id)
}

var (
	patient = &model.Principal{UserID: uuid.New(), Role: model.RolePatient}
	doctor  = &model.Principal{UserID: uuid.New(), Role: model.RoleDoctor}
)

func setup(t *testing.T, svc *fakeService) *gin.Engine {
	t.Helper()
	require.NoError(t, middleware.RegisterValidators())

	auth := middleware.NewAuthMiddleware(tokens{"patient": patient, "doctor": doctor}, "session")
	r := gin.New()
	api := r.Group("/api/v1", auth.Authenticate())
	NewHandler(svc).RegisterRoutes(api, auth)
	return r
}

func do(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handler.Response {
	var resp handler.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestCreateAppointment(t *testing.T) {
	svc := &fakeService{}
	r := setup(t, svc)

	body := `{"doctor_id":"` + doctor.UserID.String() + `","preferred_date":"2026-06-10","preferred_time":"09:30","reason":"checkup"}`
	w := do(r, http.MethodPost, "/api/v1/appointments", "patient", body)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "success", decode(t, w).Status)
	require.NotNil(t, svc.created)
	assert.Equal(t, "2026-06-10", svc.created.PreferredDate)
}

func TestCreateAppointmentValidation(t *testing.T) {
	r := setup(t, &fakeService{})

	body := `{"doctor_id":"` + doctor.UserID.String() + `","preferred_date":"10/06/2026","preferred_time":"9am","reason":"x"}`
	w := do(r, http.MethodPost, "/api/v1/appointments", "patient", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Message, "preferred_date must be YYYY-MM-DD")
}

func TestCreateAppointmentRequiresPatient(t *testing.T) {
	r := setup(t, &fakeService{})

	w := do(r, http.MethodPost, "/api/v1/appointments", "doctor", `{}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListAppointmentsBindsFilters(t *testing.T) {
	svc := &fakeService{}
	r := setup(t, svc)

	w := do(r, http.MethodGet, "/api/v1/appointments?status=accepted&page=2&page_size=5", "patient", "")

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.filters)
	assert.Equal(t, model.BookingStatusAccepted, svc.filters.Status)
	assert.Equal(t, 2, svc.filters.Page)

	data := decode(t, w).Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["total"])
	assert.EqualValues(t, 5, data["page_size"])
}

func TestRejectWithoutBody(t *testing.T) {
	svc := &fakeService{}
	r := setup(t, svc)

	w := do(r, http.MethodPost, "/api/v1/appointments/"+uuid.NewString()+"/reject", "doctor", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, svc.reason)
}

func TestCancelPassesReason(t *testing.T) {
	svc := &fakeService{}
	r := setup(t, svc)

	w := do(r, http.MethodPost, "/api/v1/appointments/"+uuid.NewString()+"/cancel", "patient", `{"reason":"travel"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "travel", svc.reason)
}

func TestServiceErrorsAreMapped(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", apperrors.NewNotFound("appointment", nil), http.StatusNotFound},
		{"conflict", apperrors.NewAppointmentError(apperrors.AppointmentInvalidTransition, "cannot accept"), http.StatusConflict},
		{"forbidden", apperrors.NewForbidden("not a participant"), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setup(t, &fakeService{err: tt.err})
			w := do(r, http.MethodGet, "/api/v1/appointments/"+uuid.NewString(), "patient", "")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "error", decode(t, w).Status)
		})
	}
}

func TestMalformedID(t *testing.T) {
	r := setup(t, &fakeService{})

	w := do(r, http.MethodGet, "/api/v1/appointments/not-a-uuid", "patient", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
