package health

import (
	"regexp"
	"time"
)

// States a Status can be in.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

// Status is the health of one dependency, or of the whole process with
// the dependencies as SubStatuses.
type Status struct {
	Component   string        `json:"component"`
	Healthy     bool          `json:"healthy"`
	Status      string        `json:"status"`
	Message     string        `json:"message"`
	Latency     time.Duration `json:"latency,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	SubStatuses []Status      `json:"sub_statuses,omitempty"`
}

func (s Status) IsHealthy() bool   { return s.Status == StateHealthy }
func (s Status) IsDegraded() bool  { return s.Status == StateDegraded }
func (s Status) IsUnhealthy() bool { return s.Status == StateUnhealthy }

// WithSubStatus returns a copy of s with sub appended. s itself is not
// modified.
func (s Status) WithSubStatus(sub Status) Status {
	subs := make([]Status, 0, len(s.SubStatuses)+1)
	s.SubStatuses = append(append(subs, s.SubStatuses...), sub)
	return s
}

// FromError converts a probe result. A failed critical probe is unhealthy,
// any other failure degraded. The error text is redacted before it can be
// served.
func FromError(component string, err error, critical bool) Status {
	switch {
	case err == nil:
		return NewHealthy(component, "ok")
	case critical:
		return NewUnhealthy(component, redact(err.Error()))
	default:
		return NewDegraded(component, redact(err.Error()))
	}
}

// redactions run in order: URLs go before paths since a URL contains one.
var redactions = []struct {
	pattern *regexp.Regexp
	with    string
}{
	{regexp.MustCompile(`(?:https?|nats|wss?)://\S+`), "[URL]"},
	{regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`), "[PATH]"},
	{regexp.MustCompile(`[A-Z]:\\[^:\s]+`), "[PATH]"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`:\d{2,5}\b`), "[PORT]"},
	{regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`), "[REDACTED]"},
}

// redact strips addresses, file paths and credentials from a probe error.
func redact(msg string) string {
	for _, r := range redactions {
		msg = r.pattern.ReplaceAllString(msg, r.with)
	}
	return msg
}
