package providers

import "fmt"

// HTTPError carries the status code and raw error body of a non-2xx API
// response. Turn-scoped: the caller reports it and moves on, no retries.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Body)
}
