package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/llxisdsh/synctable/internal/server/schema"
)

type entryBody struct {
	Value *string `json:"value" required:"true"`
}

type entryResponse struct {
	Key      string  `json:"key"`
	Value    string  `json:"value"`
	Previous *string `json:"previous,omitempty"`
}

func (service *Service) readValue(writer http.ResponseWriter, request *http.Request) (string, bool) {
	body, validationErrs, err := schema.UnmarshalBody[entryBody](request)
	if err != nil {
		service.writer.WriteInternalError(writer, err)
		return "", false
	}
	if len(validationErrs) > 0 {
		service.writer.WriteErrors(writer, http.StatusBadRequest, validationErrs...)
		return "", false
	}
	return *body.Value, true
}

// EndpointListEntries handles the 'GET /v1/entries' endpoint
func (service *Service) EndpointListEntries(writer http.ResponseWriter, _ *http.Request) {
	service.writer.WriteJSON(writer, service.Table)
}

// EndpointGetEntry handles the 'GET /v1/entries/{key}' endpoint
func (service *Service) EndpointGetEntry(writer http.ResponseWriter, request *http.Request) {
	key := chi.URLParam(request, "key")
	value, ok := service.Table.Get(key)
	if !ok {
		service.writer.WriteErrors(writer, http.StatusNotFound, schema.ErrEntryNotFound(key))
		return
	}
	service.writer.WriteJSON(writer, &entryResponse{Key: key, Value: value})
}

// EndpointPutEntry handles the 'PUT /v1/entries/{key}' endpoint
func (service *Service) EndpointPutEntry(writer http.ResponseWriter, request *http.Request) {
	key := chi.URLParam(request, "key")
	value, ok := service.readValue(writer, request)
	if !ok {
		return
	}

	previous, loaded, err := service.Table.Put(key, value)
	if err != nil {
		service.writer.WriteTableError(writer, err)
		return
	}
	if !loaded {
		service.writer.WriteJSONCode(writer, http.StatusCreated, &entryResponse{Key: key, Value: value})
		return
	}
	service.writer.WriteJSON(writer, &entryResponse{Key: key, Value: value, Previous: &previous})
}

// EndpointCreateEntry handles the 'POST /v1/entries' endpoint, storing the value under a generated key
func (service *Service) EndpointCreateEntry(writer http.ResponseWriter, request *http.Request) {
	value, ok := service.readValue(writer, request)
	if !ok {
		return
	}

	key := uuid.NewString()
	if _, loaded, err := service.Table.PutIfAbsent(key, value); err != nil {
		service.writer.WriteTableError(writer, err)
		return
	} else if loaded {
		service.writer.WriteErrors(writer, http.StatusConflict, schema.ErrEntryExists(key))
		return
	}
	service.writer.WriteJSONCode(writer, http.StatusCreated, &entryResponse{Key: key, Value: value})
}

// EndpointMergeEntry handles the 'POST /v1/entries/{key}/merge' endpoint, appending the value to the current one
func (service *Service) EndpointMergeEntry(writer http.ResponseWriter, request *http.Request) {
	key := chi.URLParam(request, "key")
	value, ok := service.readValue(writer, request)
	if !ok {
		return
	}

	merged, _, err := service.Table.Merge(key, value, func(oldValue, value string) (string, bool) {
		return oldValue + value, true
	})
	if err != nil {
		service.writer.WriteTableError(writer, err)
		return
	}
	service.writer.WriteJSON(writer, &entryResponse{Key: key, Value: merged})
}

// EndpointDeleteEntry handles the 'DELETE /v1/entries/{key}' endpoint
func (service *Service) EndpointDeleteEntry(writer http.ResponseWriter, request *http.Request) {
	key := chi.URLParam(request, "key")
	if _, ok := service.Table.Remove(key); !ok {
		service.writer.WriteErrors(writer, http.StatusNotFound, schema.ErrEntryNotFound(key))
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

// EndpointGetStats handles the 'GET /v1/stats' endpoint
func (service *Service) EndpointGetStats(writer http.ResponseWriter, _ *http.Request) {
	service.writer.WriteJSON(writer, service.Table.Stats())
}
