package domain

import "fmt"

// DiagnosticKind classifies a non-fatal problem found during a run
type DiagnosticKind string

const (
	DiagnosticDataIntegrity           DiagnosticKind = "data_integrity"
	DiagnosticConstraintUnsatisfiable DiagnosticKind = "constraint_unsatisfiable"
	DiagnosticConstraintSkipped       DiagnosticKind = "constraint_skipped"
	DiagnosticEmptyGroup              DiagnosticKind = "empty_group"
	DiagnosticOverflow                DiagnosticKind = "overflow"
	DiagnosticNumericCoercion         DiagnosticKind = "numeric_coercion"
	DiagnosticGroupFailed             DiagnosticKind = "group_failed"
)

// Severity of a diagnostic
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic is a collected, non-fatal finding. Runs never abort on these.
type Diagnostic struct {
	Kind         DiagnosticKind `json:"kind" msgpack:"kind"`
	Severity     Severity       `json:"severity" msgpack:"severity"`
	Key          *GroupKey      `json:"group,omitempty" msgpack:"group,omitempty"`
	HandlerID    string         `json:"handler_id,omitempty" msgpack:"handler_id,omitempty"`
	UnitID       string         `json:"unit_id,omitempty" msgpack:"unit_id,omitempty"`
	ConstraintID string         `json:"constraint_id,omitempty" msgpack:"constraint_id,omitempty"`
	Message      string         `json:"message" msgpack:"message"`
}

func (d Diagnostic) String() string {
	if d.Key != nil {
		return fmt.Sprintf("[%s] %s: %s", d.Kind, d.Key, d.Message)
	}
	return fmt.Sprintf("[%s] %s", d.Kind, d.Message)
}

// NewDiagnostic builds a diagnostic with the kind's default severity
func NewDiagnostic(kind DiagnosticKind, key *GroupKey, format string, args ...interface{}) Diagnostic {
	severity := SeverityWarning
	switch kind {
	case DiagnosticOverflow:
		severity = SeverityInfo
	case DiagnosticEmptyGroup, DiagnosticGroupFailed:
		severity = SeverityError
	}
	var k *GroupKey
	if key != nil {
		copied := *key
		k = &copied
	}
	return Diagnostic{
		Kind:     kind,
		Severity: severity,
		Key:      k,
		Message:  fmt.Sprintf(format, args...),
	}
}

// CountByKind tallies diagnostics per kind
func CountByKind(diags []Diagnostic) map[DiagnosticKind]int {
	counts := make(map[DiagnosticKind]int)
	for _, d := range diags {
		counts[d.Kind]++
	}
	return counts
}
