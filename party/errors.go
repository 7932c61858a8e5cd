package party

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation matches every *ValidationError with errors.Is.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState is returned when voting on a closed, played or
	// rejected subject.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict is returned when a write lost a race after all retries,
	// or when an item with the same ID already exists.
	ErrConflict = errors.New("conflict")
	// ErrNotFound is returned for unknown subjects, users or parties.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError returns a *ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PartialLoadError is returned by a fan-out load when some sections failed
// while the others loaded. The loaded sections are still usable.
type PartialLoadError struct {
	// Failed maps each failed section to its error.
	Failed map[string]error
}

// Sections returns the names of the failed sections in sorted order.
func (e *PartialLoadError) Sections() []string {
	out := make([]string, 0, len(e.Failed))
	for s := range e.Failed {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (e *PartialLoadError) Error() string {
	sections := e.Sections()
	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = fmt.Sprintf("%s: %v", s, e.Failed[s])
	}
	return "partial load: " + strings.Join(parts, "; ")
}

func (e *PartialLoadError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, s := range e.Sections() {
		out = append(out, e.Failed[s])
	}
	return out
}
