package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError reports missing or malformed input detected before any request is sent
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// RequestError is a non-2xx response or an envelope with success=false
type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RequestError) Error() string {
	return e.Message
}

// TimeoutError is returned when a request exceeds the client deadline
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("generation exceeded %s, retry later or check your network", formatTimeout(e.Timeout))
}

func formatTimeout(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	}
	return d.String()
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTimeout reports whether err is a TimeoutError
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsNotFound reports whether err is a 404 from the backend
func IsNotFound(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.StatusCode == 404
}

// envelope is the response wrapper used by every backend endpoint
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// ExtractErrorMessage pulls a user-facing message out of an error body.
// It tries error.message, then message, then error as a plain string.
func ExtractErrorMessage(body []byte, fallback string) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fallback
	}
	errField := parseErrorField(env.Error)
	if errField.Message != "" {
		return errField.Message
	}
	if env.Message != "" {
		return env.Message
	}
	if errField.Raw != "" {
		return errField.Raw
	}
	return fallback
}

// extractErrorCode returns error.code when the body carries one
func extractErrorCode(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return parseErrorField(env.Error).Code
}

// errorField is the "error" member of an envelope, either an object or a
// plain string kept in Raw
type errorField struct {
	Code    string
	Message string
	Raw     string
}

func parseErrorField(raw json.RawMessage) errorField {
	if len(raw) == 0 || string(raw) == "null" {
		return errorField{}
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return errorField{Code: obj.Code, Message: obj.Message}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return errorField{Raw: s}
	}
	return errorField{}
}

var messageRewrites = []struct {
	match   string
	message string
}{
	{"network error", "network error, check your connection and retry"},
	{"connection refused", "backend unreachable, check that the service is running"},
	{"no such host", "backend unreachable, check the configured address"},
	{"context deadline exceeded", "request timed out, retry later"},
	{"timeout", "request timed out, retry later"},
	{"413", "file too large"},
}

// NormalizeErrorMessage maps raw transport messages to readable ones
func NormalizeErrorMessage(msg string) string {
	lower := strings.ToLower(msg)
	for _, r := range messageRewrites {
		if strings.Contains(lower, r.match) {
			return r.message
		}
	}
	if msg == "" {
		return "operation failed"
	}
	return msg
}

// UserMessage returns the message shown to the user for err
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return te.Error()
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re.Message
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return NormalizeErrorMessage(err.Error())
}
