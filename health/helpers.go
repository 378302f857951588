package health

import "time"

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy returns a healthy status.
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewUnhealthy returns an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// NewDegraded returns a degraded status.
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// Aggregate rolls subs up into one status for component. The worst sub
// status decides; an empty list is healthy. subs is copied.
func Aggregate(component string, subs []Status) Status {
	state, message := StateHealthy, "all dependencies healthy"
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			state, message = StateUnhealthy, "dependency unhealthy: "+sub.Component
		case sub.IsDegraded() && state == StateHealthy:
			state, message = StateDegraded, "dependency degraded: "+sub.Component
		}
		if state == StateUnhealthy {
			break
		}
	}
	if len(subs) == 0 {
		message = "nothing to check"
	}

	status := newStatus(component, state, message)
	for _, sub := range subs {
		status = status.WithSubStatus(sub)
	}
	return status
}
