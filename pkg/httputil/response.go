package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/formulafinance/licensehub/pkg/apierrors"
	"github.com/formulafinance/licensehub/pkg/observability"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ListResponse wraps a page of results
type ListResponse struct {
	Data    interface{} `json:"data"`
	Total   int64       `json:"total"`
	Page    int         `json:"page"`
	PerPage int         `json:"perPage"`
}

// DataResponse wraps a single resource
type DataResponse struct {
	Data interface{} `json:"data"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError renders err using its apierrors kind.
// Errors without a kind are logged and reported as a generic 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apierrors.KindOf(err)
	if kind == apierrors.KindInternal {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("path", r.URL.Path).
			Error("Request failed")
	}

	WriteJSON(w, apierrors.HTTPStatus(kind), ErrorResponse{
		Error:   string(kind),
		Message: apierrors.PublicMessage(err),
	})
}

// WriteErrorKind writes an error reply for kind with a custom message
func WriteErrorKind(w http.ResponseWriter, kind apierrors.Kind, message string) {
	WriteJSON(w, apierrors.HTTPStatus(kind), ErrorResponse{
		Error:   string(kind),
		Message: message,
	})
}

// WriteBadRequest writes a 400 invalid_input error
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorKind(w, apierrors.KindInvalidInput, message)
}

// WriteTooManyRequests writes a rate limit error (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate_limited", Message: message})
}

// WriteSuccess writes a 200 response wrapping data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, DataResponse{Data: data})
}

// WriteCreated writes a 201 response wrapping data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, DataResponse{Data: data})
}

// WriteList writes a 200 paginated response
func WriteList(w http.ResponseWriter, data interface{}, total int64, page Page) error {
	return WriteJSON(w, http.StatusOK, ListResponse{
		Data:    data,
		Total:   total,
		Page:    page.Number,
		PerPage: page.PerPage,
	})
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
