package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	nativecommon "pricevault/native/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

// badRequestError marks client-side input failures before dispatch.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return &badRequestError{msg: msg} }

// statusFor maps the engine's error taxonomy onto HTTP statuses. Overflow
// and underflow stay 500: both indicate an invariant violation, not a bad
// request.
func statusFor(err error) int {
	var br *badRequestError
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.Is(err, nativecommon.ErrArrayLengthMismatch),
		errors.Is(err, nativecommon.ErrBadSequence):
		return http.StatusBadRequest
	case errors.Is(err, nativecommon.ErrAssetNotAllowed):
		return http.StatusNotFound
	case errors.Is(err, nativecommon.ErrExposureCapExceeded):
		return http.StatusConflict
	case errors.Is(err, nativecommon.ErrFeedInactive),
		errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
