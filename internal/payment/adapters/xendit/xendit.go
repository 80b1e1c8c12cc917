package xendit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/railzwaylabs/bullion/internal/config"
	paymentdomain "github.com/railzwaylabs/bullion/internal/payment/domain"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.xendit.co"

// Factory creates Xendit providers
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "xendit"
}

func (f *Factory) NewProvider(cfg config.PaymentConfig) (paymentdomain.Provider, error) {
	apiKey := strings.TrimSpace(cfg.Xendit.APIKey)
	if apiKey == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Xendit.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Xendit.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Provider{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Provider charges through Xendit hosted invoices. Invoices are paid
// out of band, so Initiate always returns a pending charge and Verify
// reports the invoice state.
type Provider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func (p *Provider) Name() string { return "xendit" }

type invoice struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	InvoiceURL string `json:"invoice_url"`
	Status     string `json:"status"`
	ExpiryDate string `json:"expiry_date"`
}

func (p *Provider) Initiate(ctx context.Context, charge paymentdomain.Charge) (*paymentdomain.ChargeResult, error) {
	amount, err := formatAmount(charge.Amount, charge.Currency)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"external_id": charge.Reference,
		"amount":      amount,
		"currency":    strings.ToUpper(charge.Currency),
		"description": fmt.Sprintf("Order %s", charge.Metadata["order_id"]),
		"metadata":    charge.Metadata,
	}
	if method := paymentMethodFor(charge.Method); method != "" {
		reqBody["payment_methods"] = []string{method}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/invoices", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.apiKey, "")
	req.Header.Set("Content-Type", "application/json")
	if charge.IdempotencyKey != "" {
		req.Header.Set("X-IDEMPOTENCY-KEY", charge.IdempotencyKey)
	}

	inv, err := p.do(req)
	if err != nil {
		return nil, err
	}

	return &paymentdomain.ChargeResult{
		TransactionID: inv.ID,
		Status:        mapStatus(inv.Status),
		Raw: map[string]any{
			"invoice_id":  inv.ID,
			"invoice_url": inv.InvoiceURL,
			"status":      inv.Status,
			"expiry_date": inv.ExpiryDate,
		},
	}, nil
}

func (p *Provider) Verify(ctx context.Context, transactionID string) (*paymentdomain.VerifyResult, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, errors.New("xendit: transaction id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v2/invoices/%s", p.baseURL, transactionID), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.apiKey, "")

	inv, err := p.do(req)
	if err != nil {
		return nil, err
	}
	return &paymentdomain.VerifyResult{
		Status: mapStatus(inv.Status),
		Raw: map[string]any{
			"invoice_id": inv.ID,
			"status":     inv.Status,
		},
	}, nil
}

func (p *Provider) do(req *http.Request) (*invoice, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("xendit api error: %d", resp.StatusCode)
	}

	var inv invoice
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		return nil, err
	}
	if inv.ID == "" {
		return nil, paymentdomain.ErrProviderResponse
	}
	return &inv, nil
}

func mapStatus(status string) paymentdomain.Status {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PAID", "SETTLED":
		return paymentdomain.StatusCompleted
	case "EXPIRED", "FAILED":
		return paymentdomain.StatusFailed
	default:
		return paymentdomain.StatusPending
	}
}

func paymentMethodFor(m paymentdomain.Method) string {
	switch m {
	case paymentdomain.MethodCreditCard, paymentdomain.MethodDebitCard:
		return "CREDIT_CARD"
	case paymentdomain.MethodUPI:
		return "UPI"
	case paymentdomain.MethodNetBanking:
		return "DIRECT_DEBIT"
	default:
		return ""
	}
}

// currencyDecimals lists currencies whose minor unit is not 1/100.
var currencyDecimals = map[string]int32{
	"IDR": 0,
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
}

// formatAmount rounds to the currency's minor unit and returns a JSON number.
func formatAmount(amount float64, currency string) (json.Number, error) {
	if amount <= 0 {
		return "", errors.New("xendit: amount must be positive")
	}
	places, ok := currencyDecimals[strings.ToUpper(currency)]
	if !ok {
		places = 2
	}
	return json.Number(decimal.NewFromFloat(amount).Round(places).StringFixed(places)), nil
}
