package audithook

// Action constants for audit events.
const (
	// Token actions
	ActionTokenIssued   = "token.issued"
	ActionTokenRejected = "token.rejected"
	ActionTokenConsumed = "token.consumed"
	ActionConsumeMissed = "token.consume_missed"
	ActionTokenExpired  = "token.expired"
	ActionTokenCollided = "token.collision"

	// Settlement actions
	ActionSettlementDelivered = "settlement.delivered"
	ActionSettlementFailed    = "settlement.failed"
)

// Resource constants for audit events.
const (
	ResourceToken      = "token"
	ResourceSettlement = "settlement"
)

// Category constants for audit events.
const (
	CategoryIssuance    = "issuance"
	CategoryRedemption  = "redemption"
	CategoryRetention   = "retention"
	CategorySettlement  = "settlement"
	CategoryIntegration = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
