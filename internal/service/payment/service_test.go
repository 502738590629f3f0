package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository/mocks"
	"github.com/jwalitptl/telecare-api/internal/service/audit"
	apperrors "github.com/jwalitptl/telecare-api/pkg/errors"
	"github.com/jwalitptl/telecare-api/pkg/httpclient"
	"github.com/jwalitptl/telecare-api/pkg/metrics"
)

var now = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

const (
	stripeSecret = "whsec_test"
	paddleSecret = "pdl_ntfset_test"
)

type recordedEvents []string

func (r *recordedEvents) Emit(_ context.Context, eventType string, _ interface{}) error {
	*r = append(*r, eventType)
	return nil
}

type fixture struct {
	svc            *Service
	appointments   *mocks.AppointmentRepository
	clinicBookings *mocks.ClinicBookingRepository
	payments       *mocks.PaymentRepository
	processed      *mocks.ProcessedEventRepository
	events         *recordedEvents
	metrics        *metrics.Metrics
}

func newFixture(providers ...Provider) *fixture {
	f := &fixture{
		appointments:   &mocks.AppointmentRepository{},
		clinicBookings: &mocks.ClinicBookingRepository{},
		payments:       &mocks.PaymentRepository{},
		processed:      &mocks.ProcessedEventRepository{},
		events:         &recordedEvents{},
		metrics:        metrics.New("test", nil),
	}
	f.svc = NewService(f.appointments, f.clinicBookings, f.payments, f.processed, providers, f.events,
		audit.Nop{}, f.metrics, Config{
			PaymentTimeout:      15 * time.Minute,
			SuccessURL:          "https://app.test/paid",
			CancelURL:           "https://app.test/cancelled",
			StripeWebhookSecret: stripeSecret,
			PaddleWebhookSecret: paddleSecret,
		})
	f.svc.now = func() time.Time { return now }
	return f
}

func testClient() *httpclient.Client {
	return httpclient.New(httpclient.Config{Name: "test", Attempts: 1})
}

func appointment(patient uuid.UUID, status model.BookingStatus) *model.Appointment {
	a := &model.Appointment{
		Booking: model.Booking{
			PatientID:     patient,
			Status:        status,
			PreferredDate: "2026-06-10",
			PreferredTime: "10:30",
			AmountCents:   5000,
			Currency:      "usd",
		},
		DoctorID: uuid.New(),
	}
	a.ID = uuid.New()
	a.UpdatedAt = now.Add(-time.Hour)
	return a
}

func patient() *model.Principal {
	return &model.Principal{UserID: uuid.New(), Role: model.RolePatient}
}

func stripeServer(t *testing.T, status int) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "5000", r.Form.Get("line_items[0][price_data][unit_amount]"))
		assert.Equal(t, "usd", r.Form.Get("line_items[0][price_data][currency]"))
		assert.NotEmpty(t, r.Form.Get("metadata[booking_id]"))

		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"id":"cs_test_1","url":"https://checkout.stripe.com/c/cs_test_1"}`))
			return
		}
		_, _ = w.Write([]byte(`{"error":{"message":"card_declined"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckoutStripe(t *testing.T) {
	srv := stripeServer(t, http.StatusOK)
	f := newFixture(NewStripeProvider(StripeConfig{SecretKey: "sk_test", BaseURL: srv.URL}, testClient()))
	p := patient()
	apt := appointment(p.UserID, model.BookingStatusAccepted)

	f.appointments.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.appointments.On("UpdateStatus", mock.Anything, apt, model.BookingStatusAccepted, now.Add(-time.Hour)).Return(nil).Once()
	f.appointments.On("UpdateStatus", mock.Anything, apt, model.BookingStatusProcessing, now).Return(nil).Once()
	f.payments.On("Create", mock.Anything, mock.MatchedBy(func(pm *model.Payment) bool {
		return pm.BookingID == apt.ID &&
			pm.ProviderRef == "cs_test_1" &&
			pm.Status == model.PaymentStatusCreated &&
			pm.AmountCents == 5000
	})).Return(nil)

	resp, err := f.svc.Checkout(context.Background(), p, &model.CheckoutRequest{
		BookingKind: model.BookingKindAppointment,
		BookingID:   apt.ID,
		Provider:    model.ProviderStripe,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/cs_test_1", resp.CheckoutURL)
	assert.Equal(t, "cs_test_1", resp.Reference)
	assert.Equal(t, now.Add(15*time.Minute), resp.ExpiresAt)

	assert.Equal(t, model.BookingStatusProcessing, apt.Status)
	require.NotNil(t, apt.PaymentReference)
	assert.Equal(t, "cs_test_1", *apt.PaymentReference)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PaymentsStarted.WithLabelValues("stripe")))
	f.appointments.AssertExpectations(t)
	f.payments.AssertExpectations(t)
}

func TestCheckoutProviderFailureRollsBack(t *testing.T) {
	srv := stripeServer(t, http.StatusPaymentRequired)
	f := newFixture(NewStripeProvider(StripeConfig{SecretKey: "sk_test", BaseURL: srv.URL}, testClient()))
	p := patient()
	apt := appointment(p.UserID, model.BookingStatusAccepted)

	f.appointments.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.appointments.On("UpdateStatus", mock.Anything, apt, model.BookingStatusAccepted, mock.Anything).Return(nil).Once()
	f.appointments.On("UpdateStatus", mock.Anything, apt, model.BookingStatusProcessing, now).Return(nil).Once()

	_, err := f.svc.Checkout(context.Background(), p, &model.CheckoutRequest{
		BookingKind: model.BookingKindAppointment,
		BookingID:   apt.ID,
		Provider:    model.ProviderStripe,
	})
	require.Error(t, err)
	assert.Equal(t, model.BookingStatusAccepted, apt.Status)
	assert.Nil(t, apt.ProcessingStartedAt)
	f.payments.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCheckoutPaymentRowFailureReleasesBooking(t *testing.T) {
	f := newFixture(NewDryRunProvider(model.ProviderStripe, "https://pay.test"))
	p := patient()
	apt := appointment(p.UserID, model.BookingStatusAccepted)

	f.appointments.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.appointments.On("UpdateStatus", mock.Anything, apt, model.BookingStatusAccepted, mock.Anything).Return(nil).Once()
	f.appointments.On("UpdateStatus", mock.Anything, apt, model.BookingStatusProcessing, now).Return(nil).Once()
	f.payments.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	_, err := f.svc.Checkout(context.Background(), p, &model.CheckoutRequest{
		BookingKind: model.BookingKindAppointment,
		BookingID:   apt.ID,
		Provider:    model.ProviderStripe,
	})
	require.Error(t, err)
	assert.Equal(t, model.BookingStatusAccepted, apt.Status)
	assert.Nil(t, apt.ProcessingStartedAt)
	assert.Nil(t, apt.PaymentReference)
	f.appointments.AssertExpectations(t)
}

func TestCheckoutRecordsPaymentBeforeReference(t *testing.T) {
	f := newFixture(NewDryRunProvider(model.ProviderStripe, "https://pay.test"))
	p := patient()
	apt := appointment(p.UserID, model.BookingStatusAccepted)

	var order []string
	f.appointments.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.appointments.On("UpdateStatus", mock.Anything, apt, model.BookingStatusAccepted, mock.Anything).Return(nil).Once()
	f.appointments.On("UpdateStatus", mock.Anything, apt, model.BookingStatusProcessing, now).
		Run(func(mock.Arguments) { order = append(order, "reference") }).Return(nil).Once()
	f.payments.On("Create", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { order = append(order, "payment") }).Return(nil)

	_, err := f.svc.Checkout(context.Background(), p, &model.CheckoutRequest{
		BookingKind: model.BookingKindAppointment,
		BookingID:   apt.ID,
		Provider:    model.ProviderStripe,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"payment", "reference"}, order)
}

func TestCheckoutRetriesExpiredAttempt(t *testing.T) {
	f := newFixture(NewDryRunProvider(model.ProviderPaddle, "https://pay.test"))
	p := patient()
	apt := appointment(p.UserID, model.BookingStatusProcessing)
	started := now.Add(-time.Hour)
	apt.ProcessingStartedAt = &started

	f.appointments.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.appointments.On("UpdateStatus", mock.Anything, apt, model.BookingStatusProcessing, mock.Anything).Return(nil).Twice()
	f.payments.On("ExpireOpen", mock.Anything, model.BookingKindAppointment, apt.ID).Return(int64(1), nil)
	f.payments.On("Create", mock.Anything, mock.Anything).Return(nil)

	resp, err := f.svc.Checkout(context.Background(), p, &model.CheckoutRequest{
		BookingKind: model.BookingKindAppointment,
		BookingID:   apt.ID,
		Provider:    model.ProviderPaddle,
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Reference, "paddle_dryrun_")
	assert.Equal(t, now, *apt.ProcessingStartedAt)
	f.payments.AssertCalled(t, "ExpireOpen", mock.Anything, model.BookingKindAppointment, apt.ID)
}

func TestCheckoutRejects(t *testing.T) {
	owner := patient()
	tests := []struct {
		name     string
		caller   *model.Principal
		status   model.BookingStatus
		amount   int64
		provider model.PaymentProvider
		want     int
	}{
		{"doctor cannot pay", &model.Principal{UserID: uuid.New(), Role: model.RoleDoctor}, model.BookingStatusAccepted, 5000, model.ProviderStripe, http.StatusForbidden},
		{"other patient", patient(), model.BookingStatusAccepted, 5000, model.ProviderStripe, http.StatusForbidden},
		{"pending booking", owner, model.BookingStatusPending, 5000, model.ProviderStripe, http.StatusConflict},
		{"already paid", owner, model.BookingStatusPaid, 5000, model.ProviderStripe, http.StatusConflict},
		{"free booking", owner, model.BookingStatusAccepted, 0, model.ProviderStripe, http.StatusConflict},
		{"unconfigured provider", owner, model.BookingStatusAccepted, 5000, model.ProviderPayPal, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(NewDryRunProvider(model.ProviderStripe, "https://pay.test"))
			apt := appointment(owner.UserID, tt.status)
			apt.AmountCents = tt.amount
			f.appointments.On("Get", mock.Anything, apt.ID).Return(apt, nil)

			_, err := f.svc.Checkout(context.Background(), tt.caller, &model.CheckoutRequest{
				BookingKind: model.BookingKindAppointment,
				BookingID:   apt.ID,
				Provider:    tt.provider,
			})
			assert.Equal(t, tt.want, apperrors.StatusOf(err))
			f.appointments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func stripeEvent(t *testing.T, id, eventType, sessionID, paymentStatus string) ([]byte, string) {
	evt := map[string]interface{}{
		"id":   id,
		"type": eventType,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":             sessionID,
				"payment_status": paymentStatus,
			},
		},
	}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	return payload, SignStripePayload(stripeSecret, payload, now)
}

func openPayment(bookingID, patientID uuid.UUID, provider model.PaymentProvider, ref string) *model.Payment {
	pm := &model.Payment{
		BookingKind: model.BookingKindAppointment,
		BookingID:   bookingID,
		PatientID:   patientID,
		Provider:    provider,
		ProviderRef: ref,
		AmountCents: 5000,
		Currency:    "usd",
		Status:      model.PaymentStatusCreated,
	}
	pm.ID = uuid.New()
	return pm
}

func TestStripeWebhookMarksPaid(t *testing.T) {
	f := newFixture()
	p := patient()
	apt := appointment(p.UserID, model.BookingStatusProcessing)
	started := now.Add(-5 * time.Minute)
	apt.ProcessingStartedAt = &started
	pm := openPayment(apt.ID, p.UserID, model.ProviderStripe, "cs_test_1")

	payload, sig := stripeEvent(t, "evt_1", "checkout.session.completed", "cs_test_1", "paid")
	f.processed.On("IsProcessed", mock.Anything, "stripe", "evt_1").Return(false, nil)
	f.payments.On("GetByProviderRef", mock.Anything, model.ProviderStripe, "cs_test_1").Return(pm, nil)
	f.appointments.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.appointments.On("UpdateStatus", mock.Anything, apt, model.BookingStatusProcessing, mock.Anything).Return(nil)
	f.payments.On("UpdateStatus", mock.Anything, pm.ID, model.PaymentStatusCreated, model.PaymentStatusSucceeded).Return(nil)
	f.processed.On("MarkProcessed", mock.Anything, "stripe", "evt_1").Return(true, nil)

	require.NoError(t, f.svc.HandleStripeWebhook(context.Background(), payload, sig))
	assert.Equal(t, model.BookingStatusPaid, apt.Status)
	assert.True(t, apt.IsPaid)
	assert.Equal(t, now, *apt.PaidAt)
	assert.Equal(t, recordedEvents{model.EventAppointmentPaid}, *f.events)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PaymentsCompleted.WithLabelValues("stripe")))
	f.processed.AssertExpectations(t)
}

func TestStripeWebhookDuplicateIsIgnored(t *testing.T) {
	f := newFixture()
	payload, sig := stripeEvent(t, "evt_1", "checkout.session.completed", "cs_test_1", "paid")
	f.processed.On("IsProcessed", mock.Anything, "stripe", "evt_1").Return(true, nil)

	require.NoError(t, f.svc.HandleStripeWebhook(context.Background(), payload, sig))
	f.payments.AssertNotCalled(t, "GetByProviderRef", mock.Anything, mock.Anything, mock.Anything)
	f.processed.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture()
	payload, _ := stripeEvent(t, "evt_1", "checkout.session.completed", "cs_test_1", "paid")

	err := f.svc.HandleStripeWebhook(context.Background(), payload, SignStripePayload("wrong", payload, now))
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(err))

	err = f.svc.HandleStripeWebhook(context.Background(), payload, SignStripePayload(stripeSecret, payload, now.Add(-10*time.Minute)))
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusOf(err))
	f.processed.AssertNotCalled(t, "IsProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestStripeWebhookFailureLeavesEventUnrecorded(t *testing.T) {
	f := newFixture()
	p := patient()
	apt := appointment(p.UserID, model.BookingStatusProcessing)
	started := now.Add(-time.Minute)
	apt.ProcessingStartedAt = &started
	pm := openPayment(apt.ID, p.UserID, model.ProviderStripe, "cs_test_1")

	payload, sig := stripeEvent(t, "evt_2", "checkout.session.completed", "cs_test_1", "paid")
	f.processed.On("IsProcessed", mock.Anything, "stripe", "evt_2").Return(false, nil)
	f.payments.On("GetByProviderRef", mock.Anything, model.ProviderStripe, "cs_test_1").Return(pm, nil)
	f.appointments.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.appointments.On("UpdateStatus", mock.Anything, apt, model.BookingStatusProcessing, mock.Anything).
		Return(apperrors.NewAppointmentError(apperrors.AppointmentConcurrentUpdate, "gone"))

	err := f.svc.HandleStripeWebhook(context.Background(), payload, sig)
	require.Error(t, err)
	f.processed.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	f.payments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStripeWebhookExpiredReleasesBooking(t *testing.T) {
	f := newFixture()
	p := patient()
	apt := appointment(p.UserID, model.BookingStatusProcessing)
	started := now.Add(-5 * time.Minute)
	ref := "cs_test_1"
	apt.ProcessingStartedAt = &started
	apt.PaymentReference = &ref
	pm := openPayment(apt.ID, p.UserID, model.ProviderStripe, ref)

	payload, sig := stripeEvent(t, "evt_3", "checkout.session.expired", ref, "unpaid")
	f.processed.On("IsProcessed", mock.Anything, "stripe", "evt_3").Return(false, nil)
	f.payments.On("GetByProviderRef", mock.Anything, model.ProviderStripe, ref).Return(pm, nil)
	f.payments.On("UpdateStatus", mock.Anything, pm.ID, model.PaymentStatusCreated, model.PaymentStatusFailed).Return(nil)
	f.appointments.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.appointments.On("UpdateStatus", mock.Anything, apt, model.BookingStatusProcessing, mock.Anything).Return(nil)
	f.processed.On("MarkProcessed", mock.Anything, "stripe", "evt_3").Return(true, nil)

	require.NoError(t, f.svc.HandleStripeWebhook(context.Background(), payload, sig))
	assert.Equal(t, model.BookingStatusAccepted, apt.Status)
	assert.Nil(t, apt.PaymentReference)
	assert.Empty(t, *f.events)
}

func TestPaddleWebhookPaysClinicBookingAfterExpiry(t *testing.T) {
	f := newFixture()
	p := patient()
	cb := &model.ClinicBooking{
		Booking: model.Booking{
			PatientID:   p.UserID,
			Status:      model.BookingStatusAccepted,
			AmountCents: 9000,
			Currency:    "usd",
		},
		ClinicID: uuid.New(),
		Service:  "x-ray",
	}
	cb.ID = uuid.New()
	cb.UpdatedAt = now.Add(-time.Minute)
	pm := openPayment(cb.ID, p.UserID, model.ProviderPaddle, "txn_01")
	pm.BookingKind = model.BookingKindClinicBooking
	pm.Status = model.PaymentStatusExpired

	payload := []byte(`{"event_id":"ntf_01","event_type":"transaction.completed","data":{"id":"txn_01","status":"completed"}}`)
	sig := SignPaddlePayload(paddleSecret, payload, now)

	f.processed.On("IsProcessed", mock.Anything, "paddle", "ntf_01").Return(false, nil)
	f.payments.On("GetByProviderRef", mock.Anything, model.ProviderPaddle, "txn_01").Return(pm, nil)
	f.clinicBookings.On("Get", mock.Anything, cb.ID).Return(cb, nil)
	f.clinicBookings.On("UpdateStatus", mock.Anything, cb, model.BookingStatusAccepted, now.Add(-time.Minute)).Return(nil)
	f.payments.On("UpdateStatus", mock.Anything, pm.ID, model.PaymentStatusExpired, model.PaymentStatusSucceeded).Return(nil)
	f.processed.On("MarkProcessed", mock.Anything, "paddle", "ntf_01").Return(true, nil)

	require.NoError(t, f.svc.HandlePaddleWebhook(context.Background(), payload, sig))
	assert.Equal(t, model.BookingStatusPaid, cb.Status)
	assert.Equal(t, "txn_01", *cb.PaymentReference)
	assert.Equal(t, recordedEvents{model.EventClinicBookingPaid}, *f.events)
}

func TestMarkPaidOnCancelledBookingOnlySettlesPayment(t *testing.T) {
	f := newFixture()
	p := patient()
	apt := appointment(p.UserID, model.BookingStatusCancelled)
	pm := openPayment(apt.ID, p.UserID, model.ProviderStripe, "cs_late")

	f.appointments.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.payments.On("UpdateStatus", mock.Anything, pm.ID, model.PaymentStatusCreated, model.PaymentStatusSucceeded).Return(nil)

	require.NoError(t, f.svc.markPaid(context.Background(), pm))
	assert.Equal(t, model.BookingStatusCancelled, apt.Status)
	assert.Empty(t, *f.events)
	f.appointments.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// second delivery is a no-op
	require.NoError(t, f.svc.markPaid(context.Background(), pm))
	f.appointments.AssertNumberOfCalls(t, "Get", 1)
}

func TestCapturePayPal(t *testing.T) {
	var tokenCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth2/token":
			tokenCalls++
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "client", user)
			assert.Equal(t, "secret", pass)
			_, _ = w.Write([]byte(`{"access_token":"A21","expires_in":3600}`))
		case "/v2/checkout/orders/ORDER-1/capture":
			assert.Equal(t, "Bearer A21", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"COMPLETED"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f := newFixture(NewPayPalProvider(PayPalConfig{ClientID: "client", ClientSecret: "secret", BaseURL: srv.URL}, testClient()))
	p := patient()
	apt := appointment(p.UserID, model.BookingStatusProcessing)
	started := now.Add(-2 * time.Minute)
	apt.ProcessingStartedAt = &started
	pm := openPayment(apt.ID, p.UserID, model.ProviderPayPal, "ORDER-1")

	f.payments.On("GetByProviderRef", mock.Anything, model.ProviderPayPal, "ORDER-1").Return(pm, nil)
	f.appointments.On("Get", mock.Anything, apt.ID).Return(apt, nil)
	f.appointments.On("UpdateStatus", mock.Anything, apt, model.BookingStatusProcessing, mock.Anything).Return(nil)
	f.payments.On("UpdateStatus", mock.Anything, pm.ID, model.PaymentStatusCreated, model.PaymentStatusSucceeded).Return(nil)

	got, err := f.svc.CapturePayPal(context.Background(), p, "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusSucceeded, got.Status)
	assert.Equal(t, model.BookingStatusPaid, apt.Status)
	assert.Equal(t, 1, tokenCalls)

	// captured payments are returned as they are
	_, err = f.svc.CapturePayPal(context.Background(), p, "ORDER-1")
	require.NoError(t, err)
	assert.Equal(t, 1, tokenCalls)
}

func TestCapturePayPalRequiresOwner(t *testing.T) {
	f := newFixture(NewDryRunProvider(model.ProviderPayPal, "https://pay.test"))
	pm := openPayment(uuid.New(), uuid.New(), model.ProviderPayPal, "ORDER-1")
	f.payments.On("GetByProviderRef", mock.Anything, model.ProviderPayPal, "ORDER-1").Return(pm, nil)

	_, err := f.svc.CapturePayPal(context.Background(), patient(), "ORDER-1")
	assert.Equal(t, http.StatusForbidden, apperrors.StatusOf(err))
}

func TestExpireStalePayments(t *testing.T) {
	f := newFixture()
	stale := appointment(uuid.New(), model.BookingStatusProcessing)
	started := now.Add(-time.Hour)
	stale.ProcessingStartedAt = &started

	raced := &model.ClinicBooking{Booking: model.Booking{PatientID: uuid.New(), Status: model.BookingStatusProcessing}}
	raced.ID = uuid.New()
	raced.ProcessingStartedAt = &started

	cutoff := now.Add(-15 * time.Minute)
	f.appointments.On("ListExpiredProcessing", mock.Anything, cutoff, sweepBatchSize).Return([]*model.Appointment{stale}, nil)
	f.clinicBookings.On("ListExpiredProcessing", mock.Anything, cutoff, sweepBatchSize).Return([]*model.ClinicBooking{raced}, nil)
	f.appointments.On("UpdateStatus", mock.Anything, stale, model.BookingStatusProcessing, mock.Anything).Return(nil)
	f.clinicBookings.On("UpdateStatus", mock.Anything, raced, model.BookingStatusProcessing, mock.Anything).
		Return(apperrors.NewAppointmentError(apperrors.AppointmentConcurrentUpdate, "gone"))
	f.payments.On("ExpireOpen", mock.Anything, model.BookingKindAppointment, stale.ID).Return(int64(1), nil)

	n, err := f.svc.ExpireStalePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.BookingStatusAccepted, stale.Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PaymentsExpired))
	f.payments.AssertNotCalled(t, "ExpireOpen", mock.Anything, model.BookingKindClinicBooking, raced.ID)
}

func TestPaddleCreateCheckout(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, "Bearer pdl_key", r.Header.Get("Authorization"))

		var tx paddleTransactionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&tx))
		if assert.Len(t, tx.Items, 1) {
			assert.Equal(t, "5000", tx.Items[0].Price.UnitPrice.Amount)
			assert.Equal(t, "USD", tx.Items[0].Price.UnitPrice.CurrencyCode)
		}
		assert.NotEmpty(t, tx.CustomData["booking_id"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"txn_01","status":"ready","checkout":{"url":"https://pay.paddle.test/txn_01"}}}`))
	}))
	defer srv.Close()

	provider := NewPaddleProvider(PaddleConfig{APIKey: "pdl_key", BaseURL: srv.URL}, testClient())
	checkout, err := provider.CreateCheckout(context.Background(), CheckoutRequest{
		PaymentID:   uuid.New(),
		BookingKind: model.BookingKindAppointment,
		BookingID:   uuid.New(),
		AmountCents: 5000,
		Currency:    "usd",
		Description: "Appointment",
	})
	require.NoError(t, err)
	assert.Equal(t, "txn_01", checkout.Reference)
	assert.Equal(t, "https://pay.paddle.test/txn_01", checkout.URL)
	assert.Equal(t, 1, calls)
}

func TestPaddleCreateCheckoutIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Config{Name: "paddle-test", Attempts: 3, Delay: time.Millisecond})
	provider := NewPaddleProvider(PaddleConfig{APIKey: "pdl_key", BaseURL: srv.URL}, client)
	_, err := provider.CreateCheckout(context.Background(), CheckoutRequest{
		PaymentID:   uuid.New(),
		BookingKind: model.BookingKindAppointment,
		BookingID:   uuid.New(),
		AmountCents: 5000,
		Currency:    "usd",
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
