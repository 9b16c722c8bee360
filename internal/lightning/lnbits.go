// Package lightning talks to the LNbits payment backend: it creates BOLT11
// invoices for recharges and verifies payment status before the ledger is
// credited.
package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ProviderLNbits identifies this payment provider in transaction records.
const ProviderLNbits = "lnbits"

// ErrNotConfigured indicates the client has no endpoint or API key.
var ErrNotConfigured = errors.New("lightning: lnbits not configured")

// Invoice is a created Lightning invoice.
type Invoice struct {
	PaymentHash    string `json:"payment_hash"`    // Hash identifying the payment.
	PaymentRequest string `json:"payment_request"` // BOLT11 invoice string.
	CheckingID     string `json:"checking_id"`     // LNbits internal ID.
}

// PaymentStatus reports the state of an invoice.
type PaymentStatus struct {
	Paid bool `json:"paid"` // Whether the invoice settled.
}

// Client is an LNbits API client.
type Client struct {
	endpoint   string
	invoiceKey string
	httpClient *http.Client
}

// NewClient constructs a Client. A nil httpClient gets a 20s-timeout
// default.
func NewClient(endpoint, invoiceKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Client{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		invoiceKey: strings.TrimSpace(invoiceKey),
		httpClient: httpClient,
	}
}

// Configured reports whether the client can reach a backend.
func (c *Client) Configured() bool {
	return c != nil && c.endpoint != "" && c.invoiceKey != ""
}

// CreateInvoice creates a BOLT11 invoice for the given satoshi amount.
func (c *Client) CreateInvoice(ctx context.Context, amountSats int64, memo string) (Invoice, error) {
	if !c.Configured() {
		return Invoice{}, ErrNotConfigured
	}
	if amountSats <= 0 {
		return Invoice{}, fmt.Errorf("lightning: invalid invoice amount %d", amountSats)
	}

	payload, errMarshal := json.Marshal(map[string]any{
		"out":    false,
		"amount": amountSats,
		"memo":   memo,
	})
	if errMarshal != nil {
		return Invoice{}, fmt.Errorf("lightning: marshal invoice request: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/v1/payments", bytes.NewReader(payload))
	if errReq != nil {
		return Invoice{}, fmt.Errorf("lightning: build request: %w", errReq)
	}
	req.Header.Set("X-Api-Key", c.invoiceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return Invoice{}, fmt.Errorf("lightning: create invoice: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Invoice{}, fmt.Errorf("lightning: create invoice status %d", resp.StatusCode)
	}

	var invoice Invoice
	if errDecode := json.NewDecoder(resp.Body).Decode(&invoice); errDecode != nil {
		return Invoice{}, fmt.Errorf("lightning: decode invoice: %w", errDecode)
	}
	if invoice.PaymentHash == "" || invoice.PaymentRequest == "" {
		return Invoice{}, fmt.Errorf("lightning: incomplete invoice response")
	}
	return invoice, nil
}

// CheckPayment reports whether the invoice for the given payment hash has
// settled.
func (c *Client) CheckPayment(ctx context.Context, paymentHash string) (PaymentStatus, error) {
	if !c.Configured() {
		return PaymentStatus{}, ErrNotConfigured
	}
	paymentHash = strings.TrimSpace(paymentHash)
	if paymentHash == "" {
		return PaymentStatus{}, fmt.Errorf("lightning: empty payment hash")
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/api/v1/payments/"+paymentHash, nil)
	if errReq != nil {
		return PaymentStatus{}, fmt.Errorf("lightning: build request: %w", errReq)
	}
	req.Header.Set("X-Api-Key", c.invoiceKey)

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return PaymentStatus{}, fmt.Errorf("lightning: check payment: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return PaymentStatus{Paid: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return PaymentStatus{}, fmt.Errorf("lightning: check payment status %d", resp.StatusCode)
	}

	var status PaymentStatus
	if errDecode := json.NewDecoder(resp.Body).Decode(&status); errDecode != nil {
		return PaymentStatus{}, fmt.Errorf("lightning: decode payment status: %w", errDecode)
	}
	return status, nil
}
