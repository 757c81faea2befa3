package httpclient

import "fmt"

// NetworkError means no usable response arrived: dial, TLS, timeout or a broken body.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-2xx status that survived the retry policy.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request %s: unexpected status: %d", e.URL, e.StatusCode)
}
