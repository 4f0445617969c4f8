// Package compliance tracks script-compliance results for one call session.
// It accumulates backend payloads into durable alert sets and renders them
// through a fixed stage pipeline so the view order is reproducible.
package compliance

// Status is the backend's verdict for the call so far.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusPass       Status = "PASS"
	StatusFail       Status = "FAIL"
)

// Terminal reports whether the status ends the call.
func (s Status) Terminal() bool {
	return s == StatusPass || s == StatusFail
}

// Payload is one structured compliance message from the backend. Every field
// is optional; absent fields leave the corresponding accumulator untouched.
type Payload struct {
	Score                *int     `json:"score,omitempty"`
	Status               Status   `json:"status,omitempty"`
	CriticalViolations   []string `json:"critical_violations,omitempty"`
	RiskViolations       []string `json:"risk_violations,omitempty"`
	MissingSteps         []string `json:"missing_steps,omitempty"`
	CompletedSteps       []string `json:"completed_steps,omitempty"`
	Alerts               []string `json:"alerts,omitempty"`
	HighRiskDetected     bool     `json:"high_risk_detected,omitempty"`
	PriorityCaseDetected bool     `json:"priority_case_detected,omitempty"`
	EmpathyCount         *int     `json:"empathy_count,omitempty"`
}
