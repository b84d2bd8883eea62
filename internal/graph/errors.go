package graph

import (
	"errors"
	"fmt"
)

type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrEmptyCaption Error = "caption must not be empty"
	ErrEmptyPostID  Error = "post id must not be empty"
)

// Kind is the failure class of an error returned by the Client.
type Kind int

const (
	KindUnknown Kind = iota
	KindHTTPStatus
	KindOperation
)

func (k Kind) String() string {
	switch k {
	case KindHTTPStatus:
		return "http_status"
	case KindOperation:
		return "operation"
	default:
		return "unknown"
	}
}

// HTTPStatusError is returned when the Graph API answers with a non-2xx status
// code. Body holds the raw response for diagnostics. URL never carries the
// access token.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	URL        string
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP error occurred: %s for url: %s", e.Status, e.URL)
}

// OperationError is returned for every other failure: transport, timeouts,
// credentials, request encoding, response decoding and invalid arguments.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return "an error occurred in " + e.Op + ": " + e.Err.Error()
}

func (e *OperationError) Unwrap() error { return e.Err }

// KindOf reports the failure class of err.
func KindOf(err error) Kind {
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return KindHTTPStatus
	}

	var opErr *OperationError
	if errors.As(err, &opErr) {
		return KindOperation
	}

	return KindUnknown
}
