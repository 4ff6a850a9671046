package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"storefront/internal/auth"
	"storefront/internal/model"

	"github.com/rs/zerolog"
)

// RequestIDHeader carries the correlation id set by the request id middleware.
const RequestIDHeader = "X-Request-ID"

const maxBodyBytes = 1 << 20

var errInvalidJSON = model.NewDomainError(model.ErrCodeInvalidJSON, "Request body is not valid JSON")

var statusByCode = map[string]int{
	model.ErrCodeInvalidJSON:         http.StatusBadRequest,
	model.ErrCodeUnauthenticated:     http.StatusUnauthorized,
	model.ErrCodeInvalidInput:        http.StatusBadRequest,
	model.ErrCodeProductNotFound:     http.StatusBadRequest,
	model.ErrCodeProductUnavailable:  http.StatusConflict,
	model.ErrCodeUnauthorized:        http.StatusForbidden,
	model.ErrCodeOrderNotFound:       http.StatusNotFound,
	model.ErrCodeInvalidTransition:   http.StatusConflict,
	model.ErrCodeIdempotencyConflict: http.StatusConflict,
	model.ErrCodeAlreadyPaid:         http.StatusConflict,
	model.ErrCodePersistenceFailure:  http.StatusInternalServerError,
	model.ErrCodeGatewayUnavailable:  http.StatusServiceUnavailable,
	model.ErrCodeGatewayRejected:     http.StatusBadGateway,
	model.ErrCodeRateLimited:         http.StatusTooManyRequests,
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError maps err to a status code and the standard error body. Causes
// of domain errors and unknown errors are logged, never returned.
func writeError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	status, _ := errorResponse(err)
	writeErrorStatus(w, status, err, logger)
}

// writeErrorStatus is writeError with the status chosen by the caller.
func writeErrorStatus(w http.ResponseWriter, status int, err error, logger zerolog.Logger) {
	_, body := errorResponse(err)
	body.CorrelationID = w.Header().Get(RequestIDHeader)

	evt := logger.Warn()
	if status >= http.StatusInternalServerError {
		evt = logger.Error()
	}
	evt.Err(err).
		Int("status", status).
		Str("code", body.Error).
		Str("request_id", body.CorrelationID).
		Msg("request failed")

	writeJSON(w, status, body)
}

func errorResponse(err error) (int, model.ErrorResponse) {
	de, ok := model.AsDomainError(err)
	if !ok {
		return http.StatusInternalServerError, model.ErrorResponse{
			Error:   model.ErrCodeInternalError,
			Message: "Internal server error",
		}
	}

	status, known := statusByCode[de.Code]
	if !known {
		status = http.StatusInternalServerError
	}
	return status, model.ErrorResponse{
		Error:   de.Code,
		Message: de.Message,
		OrderID: de.OrderID,
		Details: de.Details,
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.ErrInvalidInput.WithDetails("request body too large")
		}
		return errInvalidJSON.Wrap(err)
	}
	return nil
}

// identity returns the caller resolved by the auth middleware, or the zero
// identity which the services reject as unauthenticated.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.ErrInvalidInput.WithDetails("invalid " + name + " parameter")
	}
	return n, nil
}
