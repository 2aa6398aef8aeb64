package clevertouch

import (
	"fmt"
	"strings"
)

// AuthError reports rejected credentials or a missing/expired token. The
// session never refreshes tokens on its own; on AuthError the caller decides
// between RefreshSession and Authenticate.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("clevertouch: authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "clevertouch: authentication failed: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError reports a network-level failure reaching the cloud.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("clevertouch: request to %s failed: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports an unexpected HTTP status or a malformed response
// envelope. HTTPStatus is zero when the failure was not tied to a status code.
type ProtocolError struct {
	HTTPStatus int
	Reason     string
}

func (e *ProtocolError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("clevertouch: api error %d: %s", e.HTTPStatus, strings.TrimSpace(e.Reason))
	}
	return "clevertouch: protocol error: " + e.Reason
}

// ParseError reports a well-formed response whose data did not match the
// expected domain schema.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("clevertouch: cannot parse field %q: %s", e.Field, e.Reason)
}

// ValidationError reports an invalid argument to a mutation call, detected
// before any network I/O.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "clevertouch: invalid argument: " + e.Reason
}

// Status is the service's in-envelope result triple.
type Status struct {
	Code  int
	Key   string
	Value string
}

func (s Status) String() string {
	return fmt.Sprintf("%s(%d): %s", s.Key, s.Code, s.Value)
}

// StatusError reports an API call whose envelope carried a non-success
// status code. Business states of devices (e.g. a radiator being offline)
// are reported as data, never as a StatusError.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return "clevertouch: api call failed with " + e.Status.String()
}
