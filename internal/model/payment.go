package model

import (
	"time"

	"github.com/google/uuid"
)

type PaymentProvider string

const (
	ProviderStripe PaymentProvider = "stripe"
	ProviderPayPal PaymentProvider = "paypal"
	ProviderPaddle PaymentProvider = "paddle"
)

func (p PaymentProvider) Valid() bool {
	return p == ProviderStripe || p == ProviderPayPal || p == ProviderPaddle
}

type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "created"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusExpired   PaymentStatus = "expired"
)

// Payment is one checkout attempt against a booking.
type Payment struct {
	Base
	BookingKind BookingKind     `json:"booking_kind" db:"booking_kind"`
	BookingID   uuid.UUID       `json:"booking_id" db:"booking_id"`
	PatientID   uuid.UUID       `json:"patient_id" db:"patient_id"`
	Provider    PaymentProvider `json:"provider" db:"provider"`
	ProviderRef string          `json:"provider_ref" db:"provider_ref"`
	AmountCents int64           `json:"amount_cents" db:"amount_cents"`
	Currency    string          `json:"currency" db:"currency"`
	Status      PaymentStatus   `json:"status" db:"status"`
	CheckoutURL string          `json:"checkout_url,omitempty" db:"checkout_url"`
}

type CheckoutRequest struct {
	BookingKind BookingKind     `json:"booking_kind" binding:"required,oneof=appointment clinic_booking"`
	BookingID   uuid.UUID       `json:"booking_id" binding:"required"`
	Provider    PaymentProvider `json:"provider" binding:"required,oneof=stripe paypal paddle"`
}

type CheckoutResponse struct {
	PaymentID   uuid.UUID       `json:"payment_id"`
	Provider    PaymentProvider `json:"provider"`
	CheckoutURL string          `json:"checkout_url"`
	Reference   string          `json:"reference"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

type CaptureRequest struct {
	OrderID string `json:"order_id" binding:"required,max=64"`
}
