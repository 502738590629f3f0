package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/pkg/httpclient"
)

const paddleSignatureTolerance = 5 * time.Minute

type PaddleConfig struct {
	APIKey        string
	WebhookSecret string
	BaseURL       string
}

// PaddleProvider creates transactions through the Paddle Billing API.
type PaddleProvider struct {
	apiKey  string
	baseURL string
	client  *httpclient.Client
}

func NewPaddleProvider(cfg PaddleConfig, client *httpclient.Client) *PaddleProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://sandbox-api.paddle.com"
	}
	return &PaddleProvider{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (p *PaddleProvider) Name() model.PaymentProvider { return model.ProviderPaddle }

type paddlePrice struct {
	Description string `json:"description"`
	Name        string `json:"name"`
	UnitPrice   struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currency_code"`
	} `json:"unit_price"`
	Product struct {
		Name        string `json:"name"`
		TaxCategory string `json:"tax_category"`
	} `json:"product"`
}

type paddleItem struct {
	Price    paddlePrice `json:"price"`
	Quantity int         `json:"quantity"`
}

type paddleCheckout struct {
	URL string `json:"url,omitempty"`
}

type paddleTransactionRequest struct {
	Items      []paddleItem      `json:"items"`
	CustomData map[string]string `json:"custom_data"`
	Checkout   *paddleCheckout   `json:"checkout,omitempty"`
}

type paddleTransactionResponse struct {
	Data struct {
		ID       string          `json:"id"`
		Status   string          `json:"status"`
		Checkout *paddleCheckout `json:"checkout"`
	} `json:"data"`
}

func (p *PaddleProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	var price paddlePrice
	price.Description = req.Description
	price.Name = req.Description
	price.UnitPrice.Amount = strconv.FormatInt(req.AmountCents, 10)
	price.UnitPrice.CurrencyCode = strings.ToUpper(req.Currency)
	price.Product.Name = req.Description
	price.Product.TaxCategory = "standard"

	tx := paddleTransactionRequest{
		Items:      []paddleItem{{Price: price, Quantity: 1}},
		CustomData: metadata(req),
	}
	if req.SuccessURL != "" {
		tx.Checkout = &paddleCheckout{URL: req.SuccessURL}
	}

	body, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal paddle transaction: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build paddle request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	// Paddle has no idempotency key for transaction creation.
	resp, err := p.client.DoOnce(httpReq)
	if err != nil {
		return nil, fmt.Errorf("paddle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("paddle api status %d: %s", resp.StatusCode, string(body))
	}

	var created paddleTransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode paddle response: %w", err)
	}
	if created.Data.ID == "" || created.Data.Checkout == nil || created.Data.Checkout.URL == "" {
		return nil, errors.New("paddle response missing transaction id or checkout url")
	}
	return &Checkout{Reference: created.Data.ID, URL: created.Data.Checkout.URL}, nil
}

// PaddleEvent is the subset of a Paddle notification the service reads.
type PaddleEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Data      struct {
		ID         string            `json:"id"`
		Status     string            `json:"status"`
		CustomData map[string]string `json:"custom_data"`
	} `json:"data"`
}

// VerifyPaddleSignature checks a Paddle-Signature header of the form
// ts=<timestamp>;h1=<signature>.
func VerifyPaddleSignature(secret string, payload []byte, header string, now time.Time) error {
	if secret == "" || header == "" {
		return ErrInvalidSignature
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ts":
			timestamp = kv[1]
		case "h1":
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
	if d := now.Sub(time.Unix(ts, 0)); d > paddleSignatureTolerance || d < -paddleSignatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + ":" + string(payload)))
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

func SignPaddlePayload(secret string, payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + ":" + string(payload)))
	return "ts=" + ts + ";h1=" + hex.EncodeToString(mac.Sum(nil))
}
