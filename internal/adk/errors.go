package adk

import (
	"fmt"
	"net/http"
)

const maxErrorBody = 512

// StatusError reports a non-2xx response from the agent server.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: agent server returned %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: agent server returned %d: %s", e.Op, e.StatusCode, e.Body)
}
