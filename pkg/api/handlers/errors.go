package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"maturity-hq/steward/pkg/api/types"
	"maturity-hq/steward/pkg/governance"
)

// errorResponse maps a service error to the response sent to the client.
//
//	ValidationError          400
//	ErrNotFound              404
//	ConflictError            409  duplicate or rejected confirmation
//	InvariantViolation       409  e.g. recovering a purge past its grace window
//	*http.MaxBytesError      413
//	anything else            500, details logged only
func errorResponse(err error) *types.ErrorResponse {
	var ve *governance.ValidationError
	if errors.As(err, &ve) {
		return types.NewErrorResponse(types.ErrorTypeInvalidRequest, ve.Message, ve.Field)
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return types.NewErrorResponse(types.ErrorTypePayloadTooLarge, "request body too large", "")
	}
	if errors.Is(err, governance.ErrNotFound) {
		return types.NewErrorResponse(types.ErrorTypeNotFound, "not found", "")
	}
	var ce *governance.ConflictError
	if errors.As(err, &ce) {
		return types.NewErrorResponse(types.ErrorTypeConflict, ce.Reason, "")
	}
	var iv *governance.InvariantViolation
	if errors.As(err, &iv) {
		return types.NewErrorResponse(types.ErrorTypeConflict, "operation not permitted in the current state", "")
	}
	return types.NewErrorResponse(types.ErrorTypeServerError, "An internal error occurred. Please try again later.", "")
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse(err)
	if resp.StatusCode() >= 500 {
		h.logger.ErrorContext(r.Context(), "request failed", "error", err)
	} else {
		h.logger.DebugContext(r.Context(), "request rejected", "status", resp.StatusCode(), "error", err)
	}
	types.WriteError(w, resp)
}

// decode reads a JSON body into v. Unknown fields are rejected; an empty
// body decodes to the zero value.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return &governance.ValidationError{Message: "request body is not valid JSON: " + jsonProblem(err), Cause: err}
}

// jsonProblem describes a decode error without echoing body content.
func jsonProblem(err error) string {
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syn):
		return "syntax error"
	case errors.As(err, &typ):
		return "wrong type for field " + typ.Field
	case errors.Is(err, io.ErrUnexpectedEOF):
		return "unexpected end of input"
	}
	return "unrecognized field or value"
}
