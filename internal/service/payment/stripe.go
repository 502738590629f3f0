package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/pkg/httpclient"
)

const (
	stripeAPIVersion         = "2024-12-18.acacia"
	stripeSignatureTolerance = 300 * time.Second
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
}

type StripeProvider struct {
	secretKey string
	baseURL   string
	client    *httpclient.Client
}

func NewStripeProvider(cfg StripeConfig, client *httpclient.Client) *StripeProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.stripe.com"
	}
	return &StripeProvider{
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
	}
}

func (p *StripeProvider) Name() model.PaymentProvider { return model.ProviderStripe }

type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.PaymentID.String())
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	form.Set("line_items[0][quantity]", "1")
	if req.SuccessURL != "" {
		form.Set("success_url", req.SuccessURL)
	}
	if req.CancelURL != "" {
		form.Set("cancel_url", req.CancelURL)
	}
	for k, v := range metadata(req) {
		form.Set("metadata["+k+"]", v)
		form.Set("payment_intent_data[metadata]["+k+"]", v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/checkout/sessions",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build stripe request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Stripe-Version", stripeAPIVersion)
	httpReq.Header.Set("Idempotency-Key", req.PaymentID.String())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("stripe api status %d: %s", resp.StatusCode, string(body))
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode stripe response: %w", err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, errors.New("stripe response missing session id or url")
	}
	return &Checkout{Reference: session.ID, URL: session.URL}, nil
}

// StripeEvent is the subset of a Stripe webhook event the service reads.
type StripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			ID            string            `json:"id"`
			PaymentIntent string            `json:"payment_intent"`
			PaymentStatus string            `json:"payment_status"`
			AmountTotal   int64             `json:"amount_total"`
			Currency      string            `json:"currency"`
			Metadata      map[string]string `json:"metadata"`
			Status        string            `json:"status"`
		} `json:"object"`
	} `json:"data"`
}

// VerifyStripeSignature checks a Stripe-Signature header of the form
// t=<timestamp>,v1=<signature>[,v1=...].
func VerifyStripeSignature(secret string, payload []byte, header string, now time.Time) error {
	if secret == "" || header == "" {
		return ErrInvalidSignature
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if d := now.Sub(time.Unix(ts, 0)); d > stripeSignatureTolerance || d < -stripeSignatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	expected := mac.Sum(nil)

	for _, sig := range signatures {
		got, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// SignStripePayload builds a Stripe-Signature header. Used by tests and local
// tooling that replays webhooks.
func SignStripePayload(secret string, payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}
