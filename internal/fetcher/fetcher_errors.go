package fetcher

import (
	"errors"
	"fmt"
)

// Kind classifies a fetch failure.
type Kind int

const (
	KindNetwork Kind = iota + 1
	KindHTTPStatus
	KindWrite
	KindInvalidURL
)

var (
	ErrNetwork    = errors.New("fetcher: network error")
	ErrHTTPStatus = errors.New("fetcher: http status error")
	ErrWrite      = errors.New("fetcher: write error")
	ErrInvalidURL = errors.New("fetcher: invalid url")
)

const (
	CodeNetwork    = "E_FETCH_NETWORK"
	CodeHTTPStatus = "E_FETCH_HTTP_STATUS"
	CodeWrite      = "E_FETCH_WRITE"
	CodeInvalidURL = "E_FETCH_INVALID_URL"
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTPStatus:
		return "http_status"
	case KindWrite:
		return "write"
	case KindInvalidURL:
		return "invalid_url"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindHTTPStatus:
		return ErrHTTPStatus
	case KindWrite:
		return ErrWrite
	case KindInvalidURL:
		return ErrInvalidURL
	default:
		return nil
	}
}

// FetchError is returned for every failed Fetch. Match the class with errors.Is against
// ErrNetwork, ErrHTTPStatus, ErrWrite or ErrInvalidURL.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %q: http status %d", e.URL, e.StatusCode)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %q: %s error", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %q: %s error: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Code returns the error code reported in run summaries and API payloads.
func (e *FetchError) Code() string {
	switch e.Kind {
	case KindNetwork:
		return CodeNetwork
	case KindHTTPStatus:
		return CodeHTTPStatus
	case KindWrite:
		return CodeWrite
	case KindInvalidURL:
		return CodeInvalidURL
	default:
		return "E_FETCH_UNKNOWN"
	}
}

func newError(kind Kind, url string, err error) *FetchError {
	return &FetchError{Kind: kind, URL: url, Err: err}
}
