package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork wraps transport failures: refused connections, DNS errors,
	// resets and TLS failures
	ErrNetwork = errors.New("network error")

	// ErrMalformedResponse means the appliance answered with something
	// that is not the expected JSON object
	ErrMalformedResponse = errors.New("malformed response")
)

// HTTPError is a non-2xx answer from an appliance
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsPermanent reports whether err is an HTTP answer that will not change on
// retry without user action: bad credentials, forbidden, or wrong endpoint
func IsPermanent(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	switch httpErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
