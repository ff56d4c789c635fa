// Package model defines the data structures shared across layers.
package model

import "time"

// Run is the audit record of one sandboxed execution. It captures outcome
// metadata only, never the namespace or any value from inside the sandbox,
// so history carries no state between executions.
type Run struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"sessionId,omitempty"`
	RunID      string        `json:"runId,omitempty"`
	OK         bool          `json:"ok"`
	ErrorKind  string        `json:"errorKind,omitempty"`
	CodeSize   int           `json:"codeSize"`
	OutputSize int           `json:"outputSize"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"createdAt"`
}
