package audithook

// Action constants for audit events.
const (
	// Bill actions
	ActionBillCreated     = "bill.created"
	ActionBillClosed      = "bill.closed"
	ActionIncentiveIssued = "bill.incentive_issued"

	// Order actions
	ActionOrderCreated   = "order.created"
	ActionOrderDelivered = "order.delivered"
	ActionOrderSettled   = "order.settled"
	ActionOrderEnded     = "order.ended"
	ActionOrderCanceled  = "order.canceled"
	ActionOrderClaimed   = "order.claimed"

	// Challenge actions
	ActionChallengeRequested = "challenge.requested"
	ActionChallengeAnswered  = "challenge.answered"
	ActionChallengeTimedOut  = "challenge.timeout"
	ActionChallengePaid      = "challenge.miner_pay"

	// Collateral actions
	ActionCollateralChanged = "collateral.changed"
	ActionCollateralSlashed = "collateral.slashed"
	ActionLiquidation       = "collateral.liquidated"
)

// Resource constants for audit events.
const (
	ResourceBill      = "bill"
	ResourceOrder     = "order"
	ResourceChallenge = "challenge"
	ResourceMaker     = "maker"
)

// Category constants for audit events.
const (
	CategoryCapacity   = "capacity"
	CategorySettlement = "settlement"
	CategoryDispute    = "dispute"
	CategoryCollateral = "collateral"
	CategoryReward     = "reward"
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
	OutcomePartial = "partial"
)
