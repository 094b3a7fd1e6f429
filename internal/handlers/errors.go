package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/wandertours/apiserver/internal/query"
	"github.com/wandertours/apiserver/internal/services"
	"github.com/wandertours/apiserver/internal/store"
	"github.com/wandertours/apiserver/types"
)

// Stable machine-readable error kinds carried in every error envelope.
const (
	codeNotFound        = "not_found"
	codeValidation      = "validation_error"
	codeUnauthenticated = "unauthenticated"
	codeStaleCredential = "stale_credential"
	codeForbidden       = "forbidden"
	codeInvalidQuery    = "invalid_query"
	codeConflict        = "conflict"
	codeBadRequest      = "bad_request"
	codeInternal        = "internal_error"
)

// ErrorResponse is the error envelope. Status is "fail" for operational
// (4xx) errors and "error" for unexpected (5xx) ones.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	envelope := ErrorResponse{Status: "fail", Message: message, Code: code}
	if status >= http.StatusInternalServerError {
		envelope.Status = "error"
	}
	writeJSON(w, status, envelope)
}

// writeFailure maps a core error to its HTTP status and error kind. Unknown
// errors surface as a generic 500 without leaking internals.
func writeFailure(w http.ResponseWriter, err error) {
	var validation *types.ValidationError
	var invalidQuery *query.InvalidQueryError
	var credential credentialError

	switch {
	case errors.As(err, &credential):
		code := codeUnauthenticated
		if credential.stale {
			code = codeStaleCredential
		}
		writeError(w, http.StatusUnauthorized, code, credential.message)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "No document found with that ID")
	case errors.Is(err, store.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid ID")
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, codeConflict, "Duplicate field value")
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, codeValidation, validation.Error())
	case errors.As(err, &invalidQuery):
		writeError(w, http.StatusBadRequest, codeInvalidQuery, invalidQuery.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, codeUnauthenticated, "Incorrect email or password")
	case errors.Is(err, services.ErrResetTokenInvalid):
		writeError(w, http.StatusBadRequest, codeBadRequest, "Token is invalid or has expired")
	default:
		log.Printf("unexpected error: %v", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "Something went very wrong")
	}
}
