package authcore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Code       string      `json:"code"`
	Field      string      `json:"field,omitempty"`
	Violations []Violation `json:"violations,omitempty"`
}

// writeError is the single point where errors leave the process. Internal
// errors are logged with their cause and replaced by a generic message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := KindOf(err)
	resp := ErrorResponse{
		StatusCode: kind.StatusCode(),
		Code:       kind.Code(),
		Message:    "Internal server error",
	}

	var e *Error
	if kind == KindInternal {
		logger.Error("request failed", "error", err)
	} else if errors.As(err, &e) {
		resp.Message = e.Message
		resp.Field = e.Field
		resp.Violations = e.Violations
	}

	if kind == KindUnauthenticated {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	writeJSON(w, resp.StatusCode, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func isForm(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data")
}

// decodeJSON reads a JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return NewError(KindValidation, fmt.Sprintf("Invalid post body: %s", jsonErrorReason(err)), "")
	}
	return nil
}

// parseForm reads a urlencoded or multipart body
func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return NewError(KindValidation, "Error parsing form", "")
	}
	return nil
}

func jsonErrorReason(err error) string {
	switch err.(type) {
	case *json.SyntaxError:
		return "malformed JSON"
	case *json.UnmarshalTypeError:
		return "wrong field type"
	}
	if errors.Is(err, io.EOF) {
		return "empty body"
	}
	return "unreadable body"
}
