package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/healthkeeper/internal/common"
	"github.com/goccy/go-json"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Method  string
	Path    string
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, msg)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case common.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case common.ErrConflict:
		return isUnique(e)
	case common.ErrNotFound:
		return e.Status == http.StatusNotFound
	case common.ErrUnavailable:
		return e.Status == http.StatusBadGateway || e.Status == http.StatusServiceUnavailable ||
			e.Status == http.StatusGatewayTimeout
	}
	return false
}

// errorBody covers both the REST gateway shape ({code, message, details,
// hint}) and the auth server shapes ({error, error_description} and
// {code, error_code, msg}).
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Message          string          `json:"message"`
	Msg              string          `json:"msg"`
	Details          string          `json:"details"`
	Hint             string          `json:"hint"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	e := &APIError{Status: status, Method: method, Path: path}

	var b errorBody
	if err := json.Unmarshal(body, &b); err != nil {
		e.Message = strings.TrimSpace(string(body))
		return e
	}

	// the auth server sends a numeric code; only string codes are kept
	var code string
	if len(b.Code) > 0 && json.Unmarshal(b.Code, &code) != nil {
		code = ""
	}
	e.Code = firstNonEmpty(b.ErrorCode, code, b.Error)
	e.Message = firstNonEmpty(b.Message, b.Msg, b.ErrorDescription)
	e.Details = b.Details
	e.Hint = b.Hint
	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// IsFunctionNotFound reports whether err means the remote procedure does
// not exist on the server.
func IsFunctionNotFound(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Code {
	case "PGRST202", "42883":
		return true
	}
	// a bare 404 from an older gateway; a coded 404 was raised by the
	// procedure itself
	return ae.Status == http.StatusNotFound && ae.Code == "" && strings.Contains(ae.Path, "/rpc/")
}

// IsUniqueViolation reports whether err is a uniqueness constraint failure.
func IsUniqueViolation(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && isUnique(ae)
}

func isUnique(e *APIError) bool {
	return e.Status == http.StatusConflict || e.Code == "23505"
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// MessageOf returns the backend message carried by err, or err.Error().
func MessageOf(err error) string {
	var ae *APIError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}
