package preflight

import (
	"fmt"
	"strings"
)

// Status is the outcome of a check.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

var statusNames = [...]string{
	StatusPass: "pass",
	StatusWarn: "warn",
	StatusFail: "fail",
}

// String returns the upper-case tag, e.g. "PASS".
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "UNKNOWN"
	}
	return strings.ToUpper(statusNames[s])
}

// MarshalText encodes the status in lower case for JSON reports.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown check status %q", b)
}

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Required bool   `json:"required"`
}

// IsCritical reports a failed required check.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

func passed(name, msg string) CheckResult {
	return CheckResult{Name: name, Status: StatusPass, Message: msg, Required: true}
}

func failed(name, msg, details string) CheckResult {
	return CheckResult{Name: name, Status: StatusFail, Message: msg, Details: details, Required: true}
}

// skipped is an optional check that could not run.
func skipped(name, msg string) CheckResult {
	return CheckResult{Name: name, Status: StatusWarn, Message: msg}
}

// Summary rolls a set of results up into one verdict.
type Summary struct {
	// Status is ready, ready_with_warnings or failed.
	Status string `json:"status"`
	// Errors lists critical failures as "name: message".
	Errors []string `json:"errors,omitempty"`
	// Warnings lists warnings and failed optional checks.
	Warnings []string `json:"warnings,omitempty"`
}

// Summarize builds the Summary of results.
func Summarize(results []CheckResult) Summary {
	var s Summary
	for _, r := range results {
		line := r.Name + ": " + r.Message
		switch {
		case r.IsCritical():
			s.Errors = append(s.Errors, line)
		case r.Status != StatusPass:
			s.Warnings = append(s.Warnings, line)
		}
	}
	switch {
	case len(s.Errors) > 0:
		s.Status = "failed"
	case len(s.Warnings) > 0:
		s.Status = "ready_with_warnings"
	default:
		s.Status = "ready"
	}
	return s
}

// Failed reports whether a required check failed.
func (s Summary) Failed() bool { return len(s.Errors) > 0 }
