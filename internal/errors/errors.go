// Package errors provides a lightweight structured error type (BuildError)
// for category-based classification and user-facing reporting in the CLI.
package errors

import (
	"fmt"
	"strings"
)

// ErrorCategory represents the category of a build error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Content processing errors
	CategoryImport   ErrorCategory = "import"
	CategoryMarkdown ErrorCategory = "markdown"
	CategorySecurity ErrorCategory = "security"

	// Build and runtime errors
	CategoryBuild      ErrorCategory = "build"
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryCache      ErrorCategory = "cache"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// BuildError is a structured error with category, severity, and context
type BuildError struct {
	Category    ErrorCategory `json:"category"`
	Severity    ErrorSeverity `json:"severity"`
	Message     string        `json:"message"`
	Cause       error         `json:"cause,omitempty"`
	Context     ContextFields `json:"context,omitempty"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// ContextFields carries structured context for BuildError
type ContextFields map[string]any

// Error implements the error interface
func (e *BuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *BuildError) WithContext(key string, value any) *BuildError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion appends an actionable hint shown to the user alongside the error.
func (e *BuildError) WithSuggestion(s string) *BuildError {
	e.Suggestions = append(e.Suggestions, s)
	return e
}

// Path returns the offending path from context, if any.
func (e *BuildError) Path() string {
	if e.Context == nil {
		return ""
	}
	if p, ok := e.Context["path"].(string); ok {
		return p
	}
	return ""
}

// UserMessage renders the error with its suggestions for CLI display.
func (e *BuildError) UserMessage() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if p := e.Path(); p != "" {
		fmt.Fprintf(&b, " (%s)", p)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	for _, s := range e.Suggestions {
		b.WriteString("\n  hint: ")
		b.WriteString(s)
	}
	return b.String()
}

// New creates a new BuildError
func New(category ErrorCategory, severity ErrorSeverity, message string) *BuildError {
	return &BuildError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a BuildError wrapping an underlying cause
func Wrap(cause error, category ErrorCategory, severity ErrorSeverity, message string) *BuildError {
	return &BuildError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    cause,
	}
}

// IsCategory reports whether err is a BuildError of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	be, ok := err.(*BuildError)
	return ok && be.Category == category
}
