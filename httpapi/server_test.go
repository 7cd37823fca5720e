package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/sigil"
	"github.com/xraph/sigil/httpapi"
	"github.com/xraph/sigil/settlement"
	"github.com/xraph/sigil/store/memory"
	"github.com/xraph/sigil/tier"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newServer(t *testing.T) (*sigil.Ledger, http.Handler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := sigil.New(memory.New(),
		sigil.WithLogger(logger),
		sigil.WithSink(settlement.SinkFunc(func(context.Context, *settlement.Notice) error { return nil })),
	)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })
	return l, httpapi.New(l, httpapi.WithLogger(logger)).Engine()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httpapi.ErrorResponse {
	t.Helper()
	var e httpapi.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func TestIssueAndConsumeOverHTTP(t *testing.T) {
	_, h := newServer(t)

	w := do(h, http.MethodPost, "/sigil/tokens", `{"payer":"wallet_abc","amount":0.07,"tier":"deeper"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "deeper", w.Header().Get(httpapi.HeaderFragmentTier))
	assert.Equal(t, "false", w.Header().Get(httpapi.HeaderFragmentConsumed))
	assert.Equal(t, httpapi.BurnWarning, w.Header().Get(httpapi.HeaderWarning))
	assert.NotEmpty(t, w.Header().Get(httpapi.HeaderRequestID))

	var issued httpapi.IssueResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	assert.Equal(t, issued.TokenID, w.Header().Get(httpapi.HeaderFragmentID))
	assert.True(t, strings.HasPrefix(issued.Content, "TKN_wallet_a_"))

	w = do(h, http.MethodGet, "/sigil/tokens/"+issued.TokenID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), issued.Content)
	assert.Contains(t, w.Body.String(), `"issued"`)

	w = do(h, http.MethodPost, "/sigil/tokens/"+issued.TokenID+"/consume", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, issued.Content, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "true", w.Header().Get(httpapi.HeaderFragmentConsumed))

	w = do(h, http.MethodPost, "/sigil/tokens/"+issued.TokenID+"/consume", "")
	require.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, httpapi.CodeTokenConsumed, decodeError(t, w).Code)

	w = do(h, http.MethodPost, "/sigil/tokens/0000000000000000/consume", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, httpapi.CodeTokenNotFound, e.Code)
	assert.Equal(t, "Token not found.", e.Error)

	w = do(h, http.MethodGet, "/sigil/tokens/0000000000000000", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssueErrorMapping(t *testing.T) {
	_, h := newServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"insufficient", `{"payer":"wallet_abc","amount":0.02,"tier":"deeper"}`, http.StatusPaymentRequired, httpapi.CodeInsufficientPayment},
		{"unknown tier", `{"payer":"wallet_abc","amount":1,"tier":"abyss"}`, http.StatusBadRequest, httpapi.CodeUnknownTier},
		{"negative", `{"payer":"wallet_abc","amount":-1,"tier":"base"}`, http.StatusBadRequest, httpapi.CodeInvalidAmount},
		{"blank payer", `{"payer":"   ","amount":1,"tier":"base"}`, http.StatusBadRequest, httpapi.CodeInvalidRequest},
		{"missing payer", `{"amount":1,"tier":"base"}`, http.StatusBadRequest, httpapi.CodeInvalidRequest},
		{"no amount", `{"payer":"wallet_abc","tier":"base"}`, http.StatusBadRequest, httpapi.CodeInvalidRequest},
		{"both amounts", `{"payer":"wallet_abc","amount":1,"amount_lamports":1000,"tier":"base"}`, http.StatusBadRequest, httpapi.CodeInvalidRequest},
		{"malformed", `{"payer":`, http.StatusBadRequest, httpapi.CodeInvalidRequest},
		{"below every tier", `{"payer":"wallet_abc","amount":0.001}`, http.StatusPaymentRequired, httpapi.CodeInsufficientPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, http.MethodPost, "/sigil/tokens", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			e := decodeError(t, w)
			assert.Equal(t, tt.code, e.Code)
			assert.NotEmpty(t, e.RequestID)
		})
	}
}

func TestIssueInfersTierAndAcceptsLamports(t *testing.T) {
	_, h := newServer(t)

	tests := []struct {
		body string
		tier string
	}{
		{`{"payer":"wallet_abc","amount":0.07}`, "deeper"},
		{`{"payer":"wallet_abc","amount":0.5}`, "monolith"},
		{`{"payer":"wallet_abc","amount_lamports":10000000}`, "base"},
		{`{"payer":"wallet_abc","amount_lamports":50000000,"tier":"deeper"}`, "deeper"},
	}

	for _, tt := range tests {
		w := do(h, http.MethodPost, "/sigil/tokens", tt.body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, tt.tier, w.Header().Get(httpapi.HeaderFragmentTier), tt.body)
	}
}

func TestTiersAndHealth(t *testing.T) {
	l, h := newServer(t)

	w := do(h, http.MethodGet, "/sigil/tiers", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tiers httpapi.TiersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tiers))
	require.Len(t, tiers.Tiers, 3)
	assert.Equal(t, tier.Base, tiers.Tiers[0].Tier)
	assert.Equal(t, 5, tiers.Tiers[2].DepthMultiplier)

	w = do(h, http.MethodGet, "/sigil/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, l.Stop())
	w = do(h, http.MethodGet, "/sigil/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	_, h := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/sigil/tiers", nil)
	req.Header.Set(httpapi.HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(httpapi.HeaderRequestID))
}

func TestCustomBasePath(t *testing.T) {
	l := sigil.New(memory.New(), sigil.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	srv := httpapi.New(l, httpapi.WithBasePath("/v1"))
	assert.Equal(t, "/v1", srv.BasePath())

	w := do(srv.Engine(), http.MethodGet, "/v1/tiers", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
