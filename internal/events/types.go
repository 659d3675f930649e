package events

// Event enumerates topics published by the compliance gate.
type Event string

const (
	EventSignalReceived  Event = "signal.received"
	EventOrderPending    Event = "order.pending_approval"
	EventOrderApproved   Event = "order.approved"
	EventOrderRejected   Event = "order.rejected"
	EventOrderCancelled  Event = "order.cancelled"
	EventOrderExecuted   Event = "order.executed"
	EventTradingHalted   Event = "trading.halted"
	EventHaltCleared     Event = "trading.halt_cleared"
	EventRuleSetReloaded Event = "rules.reloaded"
)

// StreamEvents lists the topics forwarded to websocket clients of the
// operator console.
func StreamEvents() []Event {
	return []Event{
		EventSignalReceived,
		EventOrderPending,
		EventOrderApproved,
		EventOrderRejected,
		EventOrderCancelled,
		EventOrderExecuted,
		EventTradingHalted,
		EventHaltCleared,
		EventRuleSetReloaded,
	}
}
