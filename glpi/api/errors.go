package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoSession is returned when a session-scoped call is made without a session token.
	ErrNoSession = errors.New("no session token")

	// ErrSessionExpired is returned when GLPI rejects a session token as invalid.
	ErrSessionExpired = errors.New("session expired")
)

// RequestError reports an API call that GLPI answered with an HTTP error status.
type RequestError struct {
	StatusCode int
	Method     string
	URL        string

	// Code is GLPI's error identifier, e.g. ERROR_SESSION_TOKEN_INVALID, when present.
	Code string

	// Message is GLPI's error text or the raw response body.
	Message string
}

func (e *RequestError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.StatusCode, msg)
}

func newRequestError(method, url string, status int, body []byte) *RequestError {
	e := &RequestError{StatusCode: status, Method: method, URL: url}

	// GLPI reports errors as ["ERROR_CODE", "human readable message"].
	var pair []string
	if err := json.Unmarshal(body, &pair); err == nil && len(pair) > 0 {
		e.Code = pair[0]
		if len(pair) > 1 {
			e.Message = pair[1]
		}
		return e
	}

	e.Message = strings.TrimSpace(string(body))
	if e.Message == "" {
		e.Message = "GLPI produced a blank response"
	}
	return e
}
