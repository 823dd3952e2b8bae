package domain

// Severity ranks an alert for downstream notification routing.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Alert codes. Each code maps to exactly one rule in the alerting engine.
const (
	CodeServiceError    = 100 // check ended in an error status
	CodeBestBlockHalted = 101 // best block identical to previous while another member advanced
	CodeBlockDrift      = 102 // finalized block drifting behind best block
	CodeSlowResponse    = 103 // primary probe slower than the SLA
)

// AlertJob is a queued unit of work representing a detected anomaly. It is
// not persisted by the monitor; the job queue owns its lifecycle.
type AlertJob struct {
	Code          int            `json:"code"`
	Severity      Severity       `json:"severity"`
	Message       string         `json:"message"`
	MemberID      string         `json:"memberId"`
	ServiceID     string         `json:"serviceId"`
	HealthCheckID string         `json:"healthCheckId"`
	HealthChecks  []*HealthCheck `json:"healthChecks"`
}
