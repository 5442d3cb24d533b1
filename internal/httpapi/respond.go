package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"maglink/internal/errs"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	body["success"] = status < http.StatusBadRequest
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{"error": envelope{"code": code, "message": message}})
}

// statusFor maps an error code onto an HTTP status.
func statusFor(code errs.Code) int {
	switch code {
	case errs.ErrCodeInvalidInput:
		return http.StatusUnprocessableEntity
	case errs.ErrCodeNotFound:
		return http.StatusNotFound
	case errs.ErrCodeLimitExceeded:
		return http.StatusForbidden
	case errs.ErrCodeConflict:
		return http.StatusConflict
	case errs.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Uncoded errors are logged and reported as
// internal without their text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.GetCode(err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeFailure(w, http.StatusServiceUnavailable, string(errs.ErrCodeUnavailable), "request timed out")
		return
	case code == "" || code == errs.ErrCodeInternal:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeFailure(w, http.StatusInternalServerError, string(errs.ErrCodeInternal), "internal error")
		return
	}
	writeFailure(w, statusFor(code), string(code), errs.Message(err))
}

// decode reads a JSON body into dst. Malformed JSON is a bad request;
// well-formed JSON with wrongly typed fields is invalid input.
func decode(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return errs.New(errs.ErrCodeInvalidInput, "field %q must be a %s", typeErr.Field, typeErr.Type)
		}
		if errors.Is(err, io.EOF) {
			return errBadRequest{msg: "request body is empty"}
		}
		return errBadRequest{msg: "malformed JSON body"}
	}
	return nil
}

type errBadRequest struct{ msg string }

func (e errBadRequest) Error() string { return e.msg }

// fail renders a decode or service error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var bad errBadRequest
	if errors.As(err, &bad) {
		writeFailure(w, http.StatusBadRequest, "BAD_REQUEST", bad.msg)
		return
	}
	s.writeError(w, r, err)
}
