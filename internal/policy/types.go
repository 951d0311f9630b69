// Package policy is an OPA/Rego admission gate consulted by the
// transaction engine immediately before a resource is evaluated, alongside
// its tag and schedule filters.
package policy

import "time"

// Severity classifies a policy violation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Policy is one named Rego module evaluated against every resource.
type Policy struct {
	Name        string
	Description string
	Rego        string
	Severity    Severity
	Enabled     bool
	Tags        []string
	CreatedAt   time.Time
}

// Violation is one denial produced by evaluating a Policy against a
// resource.
type Violation struct {
	Policy    string
	Resource  string
	Message   string
	Severity  Severity
	DetectedAt time.Time
}

// Input is the document Rego policies receive under the `input` root.
type Input struct {
	Resource *ResourceInput `json:"resource,omitempty"`
}

// ResourceInput is the resource-shaped fragment of Input.
type ResourceInput struct {
	ID   string            `json:"id"`
	Kind string            `json:"kind"`
	Tags []string          `json:"tags,omitempty"`
}
