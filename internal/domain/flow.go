package domain

// Flow identifies one of the engine's network flows.
type Flow string

// The three flows that perform network activity.
const (
	FlowStart Flow = "start"
	FlowPoll  Flow = "poll"
	FlowSend  Flow = "send"
)

// FlowState is the persisted discriminant of a flow's state machine.
// It survives process restarts so the resumption coordinator can see
// which flow was left mid-flight.
type FlowState string

const (
	// FlowIdle means the flow has no request outstanding.
	FlowIdle FlowState = "idle"
	// FlowInFlight means the flow was started and has not completed.
	FlowInFlight FlowState = "in_flight"
)

// Condition flags persisted alongside the snapshot. Unlike flow states
// these mark durable conditions, not in-progress operations.
const (
	FlagTerminalReached = "terminal_reached"
	FlagInterfaceOpened = "interface_opened"
)
