package usecase

import (
	"smart-query/internal/domain"
)

// RouteDecision is the outcome of inspecting the most recent message after a
// model call.
type RouteDecision int

const (
	// RouteTools means the assistant requested tool calls; execute them and
	// return to the model.
	RouteTools RouteDecision = iota
	// RouteDone means the assistant produced a final answer; the turn ends.
	RouteDone
)

// Route decides the next step from the last message of the transcript.
// It is a pure function: assistant with tool calls routes to tools,
// assistant without routes to done, and any other role is a contract
// violation by the model invoker.
func Route(last domain.Message) (RouteDecision, error) {
	if last.Role != domain.RoleAssistant {
		return RouteDone, domain.NewDomainError("Route", domain.ErrUnexpectedMessageRole,
			"expected assistant message, got "+last.Role)
	}
	if last.HasToolCalls() {
		return RouteTools, nil
	}
	return RouteDone, nil
}
