package schema

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/llxisdsh/synctable"
)

// Writer helps writing unified API responses
type Writer struct {
	InternalErrorHook func(err error)
}

// WriteJSONCode writes the JSON representation of value to the given response writer using the given HTTP status code
func (writer *Writer) WriteJSONCode(rw http.ResponseWriter, code int, value any) {
	val, err := json.Marshal(value)
	if err != nil {
		writer.WriteInternalError(rw, err)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_, _ = rw.Write(val)
}

// WriteJSON writes the JSON representation of value to the given response writer.
// This method sends 200 OK as the HTTP status code; use WriteJSONCode to use a different one.
func (writer *Writer) WriteJSON(rw http.ResponseWriter, value any) {
	writer.WriteJSONCode(rw, http.StatusOK, value)
}

// WriteErrors sends an error response
func (writer *Writer) WriteErrors(rw http.ResponseWriter, code int, errs ...*Error) {
	if errs == nil {
		errs = []*Error{}
	}
	response := &ErrorResponse{
		Status: code,
		Errors: errs,
	}
	for _, err := range response.Errors {
		if err.Details == nil {
			err.Details = map[string]any{}
		}
	}
	writer.WriteJSONCode(rw, code, response)
}

// WriteInternalError processes an internal server error and writes it to the response
func (writer *Writer) WriteInternalError(rw http.ResponseWriter, err error) {
	if writer.InternalErrorHook != nil {
		writer.InternalErrorHook(err)
	}
	writer.WriteErrors(rw, http.StatusInternalServerError, ErrInternal)
}

// WriteTableError writes the response for an error returned by a table operation.
// Errors the client caused map to their own types, anything else is internal.
func (writer *Writer) WriteTableError(rw http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writer.WriteErrors(rw, http.StatusRequestEntityTooLarge, ErrSnapshotTooLarge(tooLarge.Limit))
	case errors.Is(err, synctable.ErrCorruptStream):
		writer.WriteErrors(rw, http.StatusBadRequest, ErrCorruptSnapshot)
	case errors.Is(err, synctable.ErrConcurrentModification):
		writer.WriteErrors(rw, http.StatusConflict, ErrConcurrentModification)
	default:
		writer.WriteInternalError(rw, err)
	}
}
