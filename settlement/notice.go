package settlement

import (
	"time"

	"github.com/xraph/sigil/id"
	"github.com/xraph/sigil/tier"
	"github.com/xraph/sigil/token"
	"github.com/xraph/sigil/types"
)

// DefaultEndpoint is the logical destination of token issuance notices.
const DefaultEndpoint = "/settlement/token_issued"

// Notice tells downstream systems that a token was issued against a
// payment. It never carries token content.
type Notice struct {
	ID        id.SettlementID `json:"id"`
	TokenID   string          `json:"token_id"`
	Payer     string          `json:"payer"`
	Amount    float64         `json:"amount"`
	Paid      types.Money     `json:"paid"`
	Tier      tier.Tier       `json:"tier"`
	Endpoint  string          `json:"endpoint"`
	Timestamp time.Time       `json:"timestamp"`
	Priority  bool            `json:"priority"`
}

// NewNotice builds the issuance notice for an entry.
func NewNotice(e *token.Entry, priority bool) *Notice {
	return &Notice{
		ID:        id.NewSettlementID(),
		TokenID:   e.ID,
		Payer:     e.Payer,
		Amount:    e.Amount,
		Paid:      paidSOL(e.Amount),
		Tier:      e.Tier,
		Endpoint:  DefaultEndpoint,
		Timestamp: e.CreatedAt,
		Priority:  priority,
	}
}

// paidSOL renders a SOL amount in lamports. Amounts beyond the lamport
// range leave it zero; Amount still carries them.
func paidSOL(amount float64) types.Money {
	m, err := types.FromMajor(amount, types.CurrencySOL)
	if err != nil {
		return types.Money{}
	}
	return m
}
