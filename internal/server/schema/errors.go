package schema

import "fmt"

var emptyMap = map[string]any{}

var (
	ErrInternal = &Error{
		Type:    "generic.internal",
		Message: "An internal error occurred.",
		Details: emptyMap,
	}
	ErrNotFound = &Error{
		Type:    "generic.notFound",
		Message: "Resource not found.",
		Details: emptyMap,
	}
	ErrMethodNotAllowed = &Error{
		Type:    "generic.methodNotAllowed",
		Message: "Method not allowed.",
		Details: emptyMap,
	}
	ErrCorruptSnapshot = &Error{
		Type:    "snapshot.corrupt",
		Message: "The uploaded snapshot could not be read.",
		Details: emptyMap,
	}
	ErrConcurrentModification = &Error{
		Type:    "table.concurrentModification",
		Message: "The table changed while the request was applied, retry it.",
		Details: emptyMap,
	}
	ErrSnapshotTooLarge = func(limit int64) *Error {
		return &Error{
			Type:    "snapshot.tooLarge",
			Message: fmt.Sprintf("The uploaded snapshot exceeds %d bytes.", limit),
			Details: map[string]any{
				"limit": limit,
			},
		}
	}
	ErrEntryNotFound = func(key string) *Error {
		return &Error{
			Type:    "entry.notFound",
			Message: fmt.Sprintf("There is no entry with the key '%s'.", key),
			Details: map[string]any{
				"key": key,
			},
		}
	}
	ErrEntryExists = func(key string) *Error {
		return &Error{
			Type:    "entry.exists",
			Message: fmt.Sprintf("An entry with the key '%s' already exists.", key),
			Details: map[string]any{
				"key": key,
			},
		}
	}
)

// ErrorResponse represents the response structure sent by the API whenever errors occurred
type ErrorResponse struct {
	Status int      `json:"status"`
	Errors []*Error `json:"errors"`
}

// Error represents a single error present in the ErrorResponse
type Error struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}
