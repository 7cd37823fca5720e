package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/sigil"
	"github.com/xraph/sigil/token"
	"github.com/xraph/sigil/types"
)

// HandleIssue handles POST /tokens.
//
// Response:
//
//	201 Created: IssueResponse
//	400 Bad Request: malformed body, unknown tier, invalid amount
//	402 Payment Required: amount below the tier minimum
//	500 Internal Server Error
func (s *Server) HandleIssue(c *gin.Context) {
	logger := s.requestLogger(c, "HandleIssue")

	var req IssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		s.fail(c, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}

	amount, ok := req.amount()
	if !ok {
		s.fail(c, http.StatusBadRequest, CodeInvalidRequest, "exactly one of amount and amount_lamports is required")
		return
	}

	tierName := req.Tier
	if tierName == "" {
		tierName = s.inferTier(amount)
	}

	issued, err := s.ledger.Issue(c.Request.Context(), req.Payer, amount, tierName)
	if err != nil {
		status, code := issueStatus(err)
		if status == http.StatusInternalServerError {
			logger.Error("issue failed", "error", err)
			s.fail(c, status, code, "token issuance failed")
			return
		}
		s.fail(c, status, code, err.Error())
		return
	}

	c.Header(HeaderFragmentTier, string(issued.Tier))
	c.Header(HeaderFragmentID, issued.TokenID)
	c.Header(HeaderFragmentConsumed, "false")
	c.Header(HeaderWarning, BurnWarning)
	c.JSON(http.StatusCreated, IssueResponse{
		TokenID:   issued.TokenID,
		Content:   issued.Content,
		Tier:      issued.Tier,
		Amount:    issued.Amount,
		ExpiresAt: issued.ExpiresAt,
	})
}

// HandleConsume handles POST /tokens/:id/consume.
//
// Response:
//
//	200 OK: token content as text/plain
//	404 Not Found: unknown or expired token
//	410 Gone: token already consumed
//	500 Internal Server Error
func (s *Server) HandleConsume(c *gin.Context) {
	logger := s.requestLogger(c, "HandleConsume")
	tokenID := c.Param("id")

	res, err := s.ledger.Consume(c.Request.Context(), tokenID)
	if err != nil {
		logger.Error("consume failed", "error", err)
		s.fail(c, http.StatusInternalServerError, CodeInternal, "token consumption failed")
		return
	}

	switch res.Outcome {
	case token.OutcomeConsumed:
		c.Header(HeaderFragmentID, res.TokenID)
		c.Header(HeaderFragmentConsumed, "true")
		c.String(http.StatusOK, res.Content)
	case token.OutcomeAlreadyConsumed:
		s.fail(c, http.StatusGone, CodeTokenConsumed, res.Outcome.Message())
	default:
		s.fail(c, http.StatusNotFound, CodeTokenNotFound, res.Outcome.Message())
	}
}

// HandleStatus handles GET /tokens/:id.
func (s *Server) HandleStatus(c *gin.Context) {
	st, err := s.ledger.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if sigil.IsNotFound(err) {
			s.fail(c, http.StatusNotFound, CodeTokenNotFound, token.OutcomeNotFound.Message())
			return
		}
		s.requestLogger(c, "HandleStatus").Error("status failed", "error", err)
		s.fail(c, http.StatusInternalServerError, CodeInternal, "status lookup failed")
		return
	}
	c.JSON(http.StatusOK, st)
}

// HandleTiers handles GET /tiers.
func (s *Server) HandleTiers(c *gin.Context) {
	c.JSON(http.StatusOK, TiersResponse{Tiers: s.ledger.Policy().Configs()})
}

// HandleHealth handles GET /healthz.
func (s *Server) HandleHealth(c *gin.Context) {
	if err := s.ledger.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// amount resolves the SOL amount from either field.
func (r IssueRequest) amount() (float64, bool) {
	switch {
	case r.Amount != nil && r.AmountLamports == nil:
		return *r.Amount, true
	case r.Amount == nil && r.AmountLamports != nil:
		return types.Lamports(*r.AmountLamports).Major(), true
	default:
		return 0, false
	}
}

// inferTier picks the highest qualifying tier. When none qualifies the
// lowest tier is returned so the ledger reports why the amount fell short.
func (s *Server) inferTier(amount float64) string {
	policy := s.ledger.Policy()
	if t, ok := policy.Qualify(amount); ok {
		return string(t)
	}
	if tiers := policy.Tiers(); len(tiers) > 0 {
		return string(tiers[0])
	}
	return ""
}

func issueStatus(err error) (int, string) {
	switch {
	case errors.Is(err, sigil.ErrInvalidPayment):
		return http.StatusPaymentRequired, CodeInsufficientPayment
	case errors.Is(err, sigil.ErrUnknownTier):
		return http.StatusBadRequest, CodeUnknownTier
	case errors.Is(err, sigil.ErrInvalidAmount):
		return http.StatusBadRequest, CodeInvalidAmount
	case errors.Is(err, sigil.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidRequest
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (s *Server) fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: c.GetString(requestIDKey),
	})
}

func (s *Server) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return s.logger.With("request_id", c.GetString(requestIDKey), "handler", handler)
}
