package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for cache and fetch operations
var (
	// ErrCacheMiss indicates no entry is stored under the requested key
	ErrCacheMiss = errors.New("cache miss")

	// ErrStoreClosed indicates the secure store has been shut down
	ErrStoreClosed = errors.New("secure store is closed")

	// ErrImageUnavailable indicates an image could not be loaded from cache or network
	ErrImageUnavailable = errors.New("image unavailable")

	// ErrInvalidImage indicates downloaded bytes do not decode as an image
	ErrInvalidImage = errors.New("bytes are not a valid image")

	// ErrEmptyTerm indicates a search was requested for a blank term
	ErrEmptyTerm = errors.New("search term is empty")

	// ErrInvalidTerm indicates a search term that is not valid UTF-8
	ErrInvalidTerm = errors.New("search term is not valid UTF-8")
)

// FetchErrorKind classifies a remote fetch failure.
type FetchErrorKind int

const (
	// FetchInvalidQuery: the request could not be constructed
	FetchInvalidQuery FetchErrorKind = iota
	// FetchTransport: network-layer failure or non-success HTTP status
	FetchTransport
	// FetchEmptyResponse: connection succeeded but the body was empty
	FetchEmptyResponse
	// FetchDecode: body did not match the expected shape
	FetchDecode
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchInvalidQuery:
		return "invalid query"
	case FetchTransport:
		return "transport"
	case FetchEmptyResponse:
		return "empty response"
	case FetchDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FetchError is returned by remote album sources.
type FetchError struct {
	Kind FetchErrorKind
	Op   string // "search" or "image"
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchKind reports whether err is a FetchError of the given kind.
func IsFetchKind(err error, kind FetchErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}
