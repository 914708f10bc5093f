package crm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "leadbot/cli/internal/errors"
)

// APIError is an error status returned by Salesforce.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     []string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("salesforce %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("salesforce %d: %s", e.StatusCode, e.Message)
}

// parseAPIError extracts the message from a Salesforce error payload. The
// REST API answers with a list of {message, errorCode, fields}; the OAuth
// endpoints use {error, error_description}. Anything else falls back to the
// status text.
func parseAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	if gjson.ValidBytes(body) {
		r := gjson.ParseBytes(body)
		if r.IsArray() {
			r = r.Get("0")
		}
		if r.IsObject() {
			e.Message = firstString(r, "message", "error_description")
			e.Code = firstString(r, "errorCode", "error")
			for _, f := range r.Get("fields").Array() {
				if s := f.String(); s != "" {
					e.Fields = append(e.Fields, s)
				}
			}
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
		if e.Message == "" {
			e.Message = fmt.Sprintf("HTTP %d", status)
		}
	}
	return e
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// responseError classifies a non-2xx response.
func responseError(status int, body []byte) *apperrors.E {
	apiErr := parseAPIError(status, body)
	if status == http.StatusUnauthorized {
		return apperrors.Wrap(apperrors.Transport, "Salesforce session expired; re-authentication required (run leadbot login)", apiErr)
	}
	msg := apiErr.Message
	if len(apiErr.Fields) > 0 {
		msg = fmt.Sprintf("%s (fields: %s)", msg, strings.Join(apiErr.Fields, ", "))
	}
	return apperrors.Wrap(apperrors.RemoteRejected, msg, apiErr)
}
