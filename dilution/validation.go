package dilution

import (
	"errors"
	"fmt"
	"strings"
)

// Severity classifies a validation entry.
type Severity string

const (
	// SeverityError blocks the batch from being used.
	SeverityError Severity = "error"
	// SeverityWarning is surfaced to the operator but does not block.
	SeverityWarning Severity = "warning"
)

// ValidationException reports one problem, optionally tied to a transfer.
type ValidationException struct {
	Message  string
	Severity Severity
	Transfer *SingleTransfer
}

func (v ValidationException) String() string {
	if v.Transfer == nil {
		return fmt.Sprintf("%s: %s", v.Severity, v.Message)
	}
	return fmt.Sprintf("%s: %s -> %s: %s", v.Severity, v.Transfer.Source.ArtifactName, v.Transfer.Target.ArtifactName, v.Message)
}

// ValidationResults accumulates validation entries in the order they were raised.
type ValidationResults struct {
	Items []ValidationException
}

// Error records an ERROR entry for t.
func (r *ValidationResults) Error(t *SingleTransfer, format string, args ...any) {
	r.Items = append(r.Items, ValidationException{Message: fmt.Sprintf(format, args...), Severity: SeverityError, Transfer: t})
}

// Warning records a WARNING entry for t.
func (r *ValidationResults) Warning(t *SingleTransfer, format string, args ...any) {
	r.Items = append(r.Items, ValidationException{Message: fmt.Sprintf(format, args...), Severity: SeverityWarning, Transfer: t})
}

// Merge appends entries from other.
func (r *ValidationResults) Merge(other ValidationResults) {
	if len(other.Items) == 0 {
		return
	}
	r.Items = append(r.Items, other.Items...)
}

// HasErrors reports whether any ERROR entry was recorded.
func (r ValidationResults) HasErrors() bool {
	for _, v := range r.Items {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the ERROR entries.
func (r ValidationResults) Errors() []ValidationException {
	return r.filter(SeverityError)
}

// Warnings returns the WARNING entries.
func (r ValidationResults) Warnings() []ValidationException {
	return r.filter(SeverityWarning)
}

func (r ValidationResults) filter(s Severity) []ValidationException {
	var out []ValidationException
	for _, v := range r.Items {
		if v.Severity == s {
			out = append(out, v)
		}
	}
	return out
}

// ForTransfer returns the entries tied to t.
func (r ValidationResults) ForTransfer(t *SingleTransfer) []ValidationException {
	var out []ValidationException
	for _, v := range r.Items {
		if v.Transfer == t {
			out = append(out, v)
		}
	}
	return out
}

// UsageError is returned once every transfer has been checked and at least
// one ERROR was found. It carries warnings too so the operator sees everything at once.
type UsageError struct {
	Robot   string
	Results ValidationResults
}

func (e *UsageError) Error() string {
	var b strings.Builder
	n := len(e.Results.Errors())
	if e.Robot != "" {
		fmt.Fprintf(&b, "robot %s: ", e.Robot)
	}
	fmt.Fprintf(&b, "%d validation error(s):", n)
	for _, v := range e.Results.Items {
		b.WriteString("\n  ")
		b.WriteString(v.String())
	}
	return b.String()
}

var (
	// ErrInconsistentRobots is returned when configured robots disagree on the update information.
	ErrInconsistentRobots = errors.New("robots produce inconsistent results")
	// ErrUnknownRobot is returned when a robot name is not configured.
	ErrUnknownRobot = errors.New("unknown robot")
	// ErrNotEvaluated is returned when results are requested before Evaluate.
	ErrNotEvaluated = errors.New("session has not been evaluated")
	// ErrDisjointContainers is returned when a container is both source and target of one batch.
	ErrDisjointContainers = errors.New("container is both source and target within a batch")
)
