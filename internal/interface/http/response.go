package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/teamvidya/risk-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSES
// ══════════════════════════════════════════════════════════════════════════════

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Envelope wraps the outcome of a write endpoint.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// writeJSON writes data as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Envelope{Status: statusSuccess, Message: message, Data: data})
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Status: statusError, Message: message})
}

// writeError maps err onto a status code. prefix is prepended to the
// message of server-side failures.
func writeError(w http.ResponseWriter, err error, prefix string) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError && prefix != "" {
		message = prefix + ": " + message
	}
	writeErrorMessage(w, status, message)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), shared.IsValidation(err):
		return http.StatusBadRequest
	case shared.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrConcurrentModification):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DECODING
// ══════════════════════════════════════════════════════════════════════════════

var errBadRequest = errors.New("bad request")

// decodeJSON reads a single JSON document of at most limit bytes into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(body)

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is empty", errBadRequest)
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: request body exceeds %d bytes", errBadRequest, maxErr.Limit)
		default:
			return fmt.Errorf("%w: malformed JSON: %v", errBadRequest, err)
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must hold a single JSON document", errBadRequest)
	}
	return nil
}

// pathID parses the {id} path value.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid student id %q", errBadRequest, raw)
	}
	return id, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PAYLOAD VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRecords checks every element of a payload array and reports the
// first broken field of each record.
func validateRecords[T any](v *validator.Validate, records []T) error {
	var errs []error
	for i := range records {
		if err := v.Struct(records[i]); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %s", i, describe(err)))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return shared.WrapError("http", "Validate", shared.ErrValidation, "invalid payload", errors.Join(errs...))
}

func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}
	parts := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			parts[i] = fe.Field() + " is required"
		case "datetime":
			parts[i] = fmt.Sprintf("%s must be a date in %s format", fe.Field(), fe.Param())
		case "gt":
			parts[i] = fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
		default:
			parts[i] = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
		}
	}
	return strings.Join(parts, ", ")
}
