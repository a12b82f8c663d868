// Package action tracks the overall status of a GitHub Actions run.
package action

import (
	"fmt"
	"strings"
	"sync"
)

// Severity classifies an error recorded during a run.
type Severity int

const (
	// Soft errors are logged and never fail the run.
	Soft Severity = iota
	// Test errors are confined to one URL but mark the run failed.
	Test
	// Run errors fail the whole run.
	Run
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case Soft:
		return "soft"
	case Test:
		return "test"
	case Run:
		return "run"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Problem is one recorded error.
type Problem struct {
	Severity Severity
	Message  string
}

// Status aggregates the problems of a run. It is safe for concurrent use.
type Status struct {
	mu       sync.Mutex
	problems []Problem
}

// NewStatus creates an empty status.
func NewStatus() *Status {
	return &Status{problems: make([]Problem, 0)}
}

// Record adds a problem.
func (s *Status) Record(severity Severity, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.problems = append(s.problems, Problem{Severity: severity, Message: msg})
}

// Failed reports whether any non-soft problem was recorded.
func (s *Status) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.problems {
		if p.Severity != Soft {
			return true
		}
	}

	return false
}

// Problems returns a copy of the recorded problems, optionally filtered to
// the given severities.
func (s *Status) Problems(severities ...Severity) []Problem {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Problem, 0, len(s.problems))

	for _, p := range s.problems {
		if len(severities) == 0 || contains(severities, p.Severity) {
			out = append(out, p)
		}
	}

	return out
}

// Err returns an error describing the failing problems, or nil when the run
// succeeded.
func (s *Status) Err() error {
	failing := s.Problems(Test, Run)
	if len(failing) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(failing))
	for _, p := range failing {
		msgs = append(msgs, p.Message)
	}

	return &FailedError{Messages: msgs}
}

// FailedError is returned by Status.Err.
type FailedError struct {
	Messages []string
}

func (e *FailedError) Error() string {
	if len(e.Messages) == 1 {
		return e.Messages[0]
	}

	return fmt.Sprintf("%d failures: %s", len(e.Messages), strings.Join(e.Messages, "; "))
}

func contains(list []Severity, s Severity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}
