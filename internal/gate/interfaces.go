package gate

import "compliance-gate/internal/market"

// RiskEvaluator is the external account-level risk collaborator. The gate
// records the detail verbatim and never retries; a failed check rejects the
// current order.
type RiskEvaluator interface {
	Check(o Order, snap market.Snapshot) (passed bool, detail string)
}

// BrokerAdapter submits approved orders for execution. The gate treats the
// call as synchronous and never retries it: retry policy for a partially
// submitted trade belongs to the adapter or its caller.
type BrokerAdapter interface {
	Submit(o Order) (orderRef string, err error)
}
