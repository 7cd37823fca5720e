package httpapi

import (
	"time"

	"github.com/xraph/sigil/tier"
)

// IssueRequest is the body of POST /tokens. Exactly one of Amount (SOL)
// and AmountLamports must be set. An empty Tier selects the highest tier
// the amount qualifies for.
type IssueRequest struct {
	Payer          string   `json:"payer" binding:"required,max=128"`
	Amount         *float64 `json:"amount,omitempty"`
	AmountLamports *int64   `json:"amount_lamports,omitempty"`
	Tier           string   `json:"tier,omitempty" binding:"max=32"`
}

// IssueResponse is returned with 201 Created.
type IssueResponse struct {
	TokenID   string    `json:"token_id"`
	Content   string    `json:"content"`
	Tier      tier.Tier `json:"tier"`
	Amount    float64   `json:"amount"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TiersResponse is returned by GET /tiers.
type TiersResponse struct {
	Tiers []tier.Config `json:"tiers"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`

	// RequestID echoes the X-Request-ID header.
	RequestID string `json:"request_id,omitempty"`
}

// Error codes.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInsufficientPayment = "INSUFFICIENT_PAYMENT"
	CodeUnknownTier         = "UNKNOWN_TIER"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeTokenNotFound       = "TOKEN_NOT_FOUND"
	CodeTokenConsumed       = "TOKEN_CONSUMED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Response headers set on issuance and consumption.
const (
	HeaderRequestID        = "X-Request-ID"
	HeaderFragmentTier     = "X-Fragment-Tier"
	HeaderFragmentID       = "X-Fragment-ID"
	HeaderFragmentConsumed = "X-Fragment-Consumed"
	HeaderWarning          = "X-Warning"
)

// BurnWarning is sent in X-Warning with every issued token.
const BurnWarning = "This token burns after reading. Do not expect to retrieve it again."
