package errors

import (
	"fmt"
	"strings"
)

// IsClientError reports whether err is this package's Error type.
func IsClientError(err error) bool {
	_, ok := err.(*Error)
	return ok
}

// IdentifierOf returns the taxonomy identifier of err, or "" for foreign
// error types.
func IdentifierOf(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Identifier()
	}
	return ""
}

// HasIdentifier reports whether err carries the given taxonomy identifier.
func HasIdentifier(err error, identifier string) bool {
	return IdentifierOf(err) == identifier
}

// FormatError renders err for logging, including origin and causal trace
// when available.
func FormatError(err error) string {
	e, ok := err.(*Error)
	if !ok {
		return err.Error()
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("Identifier: %s", e.Identifier()))
	parts = append(parts, fmt.Sprintf("Reason: %s", e.Reason()))

	origin := e.Origin()
	if origin.File != "" {
		parts = append(parts, fmt.Sprintf("Origin: %s (%s:%d)", origin.Function, origin.File, origin.Line))
	}

	if trace := e.CausalTrace(); len(trace) > 0 {
		parts = append(parts, "Trace:")
		for _, frame := range trace {
			parts = append(parts, "  "+frame)
		}
	}

	return strings.Join(parts, "\n")
}
