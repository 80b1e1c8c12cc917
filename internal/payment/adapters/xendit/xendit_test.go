package xendit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/railzwaylabs/bullion/internal/config"
	paymentdomain "github.com/railzwaylabs/bullion/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) paymentdomain.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewFactory().NewProvider(config.PaymentConfig{
		Xendit: config.XenditConfig{APIKey: "xnd_test", BaseURL: srv.URL},
	})
	require.NoError(t, err)
	return p
}

func TestNewProvider_RequiresAPIKey(t *testing.T) {
	_, err := NewFactory().NewProvider(config.PaymentConfig{})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}

func TestInitiate(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/invoices", r.URL.Path)
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "xnd_test", user)
		assert.Equal(t, "idem-1", r.Header.Get("X-IDEMPOTENCY-KEY"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "inv_123",
			"invoice_url": "https://checkout.xendit.co/inv_123",
			"status":      "PENDING",
		})
	})

	res, err := p.Initiate(context.Background(), paymentdomain.Charge{
		Reference:      "pay_1",
		Amount:         10000.129,
		Currency:       "inr",
		Method:         paymentdomain.MethodUPI,
		Metadata:       map[string]string{"order_id": "42", "user_id": "u1"},
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "inv_123", res.TransactionID)
	assert.Equal(t, paymentdomain.StatusPending, res.Status)
	assert.Equal(t, "https://checkout.xendit.co/inv_123", res.Raw["invoice_url"])
	assert.Equal(t, 10000.13, body["amount"])
	assert.Equal(t, "INR", body["currency"])
	assert.Equal(t, "pay_1", body["external_id"])
	assert.Equal(t, []any{"UPI"}, body["payment_methods"])
}

func TestInitiate_APIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	_, err := p.Initiate(context.Background(), paymentdomain.Charge{Amount: 10, Currency: "IDR"})
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	tests := []struct {
		remote string
		want   paymentdomain.Status
	}{
		{"PAID", paymentdomain.StatusCompleted},
		{"SETTLED", paymentdomain.StatusCompleted},
		{"EXPIRED", paymentdomain.StatusFailed},
		{"PENDING", paymentdomain.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v2/invoices/inv_9", r.URL.Path)
				_ = json.NewEncoder(w).Encode(map[string]any{"id": "inv_9", "status": tt.remote})
			})
			res, err := p.Verify(context.Background(), "inv_9")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	n, err := formatAmount(15000.4, "IDR")
	require.NoError(t, err)
	assert.Equal(t, "15000", n.String())

	n, err = formatAmount(0.1+0.2, "USD")
	require.NoError(t, err)
	assert.Equal(t, "0.30", n.String())

	_, err = formatAmount(0, "USD")
	assert.Error(t, err)
}
