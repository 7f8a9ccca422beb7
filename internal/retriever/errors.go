package retriever

import (
	"errors"
	"fmt"
	"net/http"
)

// UnreachableError reports that the remote service could not be contacted
// at all: DNS, connect, TLS or timeout failures.
type UnreachableError struct {
	URL string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("remote unreachable: %s: %v", e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// RemoteError reports a non-success HTTP response. Code and Message are
// filled from an <error> element in the body when one is present.
type RemoteError struct {
	Status    int
	Code      int
	Message   string
	Retryable bool
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("remote error: HTTP %d: api error %d: %s", e.Status, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("remote error: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("remote error: HTTP %d %s", e.Status, http.StatusText(e.Status))
}

// IsRetryable reports whether err is a transient retrieval failure.
func IsRetryable(err error) bool {
	var unreachable *UnreachableError
	if errors.As(err, &unreachable) {
		return true
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Retryable
	}
	return false
}

func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}
