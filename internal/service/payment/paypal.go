package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/pkg/httpclient"
)

type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
}

// PayPalProvider creates orders through the Orders v2 API. Orders are
// captured by the server once the payer approves them.
type PayPalProvider struct {
	clientID     string
	clientSecret string
	baseURL      string
	client       *httpclient.Client
	now          func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPalProvider(cfg PayPalConfig, client *httpclient.Client) *PayPalProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api-m.sandbox.paypal.com"
	}
	return &PayPalProvider{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		now:          time.Now,
	}
}

func (p *PayPalProvider) Name() model.PaymentProvider { return model.ProviderPayPal }

type paypalToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (p *PayPalProvider) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// refresh a minute early
	if p.accessToken != "" && p.now().Add(time.Minute).Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build paypal token request: %w", err)
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tok paypalToken
	if err := p.do(req, &tok); err != nil {
		return "", fmt.Errorf("failed to get paypal token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("paypal token response missing access_token")
	}
	p.accessToken = tok.AccessToken
	p.tokenExpiry = p.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return p.accessToken, nil
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id"`
	CustomID    string       `json:"custom_id"`
	Description string       `json:"description,omitempty"`
	Amount      paypalAmount `json:"amount"`
}

type paypalOrderRequest struct {
	Intent             string               `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit `json:"purchase_units"`
	ApplicationContext struct {
		ReturnURL string `json:"return_url,omitempty"`
		CancelURL string `json:"cancel_url,omitempty"`
	} `json:"application_context"`
}

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

func (p *PayPalProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	token, err := p.token(ctx)
	if err != nil {
		return nil, err
	}

	order := paypalOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			ReferenceID: req.BookingID.String(),
			CustomID:    req.PaymentID.String(),
			Description: req.Description,
			Amount: paypalAmount{
				CurrencyCode: strings.ToUpper(req.Currency),
				Value:        majorUnits(req.AmountCents),
			},
		}},
	}
	order.ApplicationContext.ReturnURL = req.SuccessURL
	order.ApplicationContext.CancelURL = req.CancelURL

	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal paypal order: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/checkout/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build paypal request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("PayPal-Request-Id", req.PaymentID.String())

	var created paypalOrder
	if err := p.do(httpReq, &created); err != nil {
		return nil, fmt.Errorf("failed to create paypal order: %w", err)
	}

	for _, link := range created.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return &Checkout{Reference: created.ID, URL: link.Href}, nil
		}
	}
	return nil, fmt.Errorf("paypal order %s has no approve link", created.ID)
}

// Capture captures an approved order and reports whether the funds moved.
func (p *PayPalProvider) Capture(ctx context.Context, orderID string) (bool, error) {
	token, err := p.token(ctx)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", bytes.NewReader([]byte("{}")))
	if err != nil {
		return false, fmt.Errorf("failed to build paypal capture request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PayPal-Request-Id", "capture-"+orderID)

	var captured paypalOrder
	if err := p.do(req, &captured); err != nil {
		return false, fmt.Errorf("failed to capture paypal order: %w", err)
	}
	return captured.Status == "COMPLETED", nil
}

func (p *PayPalProvider) do(req *http.Request, out interface{}) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("paypal api status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode paypal response: %w", err)
	}
	return nil
}
