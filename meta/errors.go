package meta

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the closed set of failure classes the Graph client can emit.
// Every outbound fault is folded into one of these; nothing escapes untyped.
type ErrorKind string

const (
	ErrMissingCredential    ErrorKind = "missing_credential"
	ErrMissingRequiredField ErrorKind = "missing_required_field"
	ErrUpstreamHTTP         ErrorKind = "upstream_http_error"
	ErrTransport            ErrorKind = "transport_exception"
	ErrUnexpectedResponse   ErrorKind = "unexpected_response"
	ErrMediaContainerFailed ErrorKind = "media_container_failed"
	ErrInvalidPayload       ErrorKind = "invalid_payload"
)

// Error is the typed result of any failed Graph operation.
type Error struct {
	Kind    ErrorKind
	Scope   Scope // set for missing_credential
	Message string
	Status  int    // upstream HTTP status for upstream_http_error
	Body    string // upstream response body, when available
	Details interface{}
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrMissingCredential:
		return fmt.Sprintf("meta: missing %s credential", e.Scope)
	case ErrUpstreamHTTP:
		return fmt.Sprintf("meta: upstream error %d: %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("meta: %s: %s", e.Kind, e.Message)
	}
}

// HTTPStatus maps the error kind onto the status class callers return.
// Malformed caller input is a 400; everything the caller cannot fix (a
// missing server-side credential, an upstream fault, a garbled response)
// surfaces as 502.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case ErrMissingRequiredField, ErrInvalidPayload:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// AsError unwraps err into a *Error if it is one.
func AsError(err error) (*Error, bool) {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr, true
	}
	return nil, false
}

func missingCredential(scope Scope) *Error {
	return &Error{Kind: ErrMissingCredential, Scope: scope}
}

func missingField(field string) *Error {
	return &Error{Kind: ErrMissingRequiredField, Message: field + " is required"}
}

func transportError(err error) *Error {
	return &Error{Kind: ErrTransport, Message: err.Error()}
}

func upstreamError(status int, body []byte) *Error {
	return &Error{Kind: ErrUpstreamHTTP, Status: status, Body: string(body)}
}

func unexpectedResponse(body []byte) *Error {
	return &Error{Kind: ErrUnexpectedResponse, Message: "undecodable provider response", Body: string(body)}
}
