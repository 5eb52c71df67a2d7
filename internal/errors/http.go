package errors

import "fmt"

// HTTPError carries the status code and response body of a failed provider
// call. The resilient invoker classifies it into the retry taxonomy; clients
// inspect it with errors.As to distinguish 404 probes from real failures.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is an HTTPError with status 404.
// Used by existence probes that treat 404 as "absent" rather than a failure.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return As(err, &httpErr) && httpErr.StatusCode == 404
}

// StatusCode extracts the HTTP status code from err, or 0 if err does not
// wrap an HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
