package explorer

import (
	"fmt"
	"strings"
)

// StatusError is a non-2xx explorer response. The retry package classifies
// it through the explicit markers attached by the client, so Error() only
// needs to be readable.
type StatusError struct {
	Status int
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 160 {
		body = body[:160] + "..."
	}
	if body == "" {
		return fmt.Sprintf("http status %d from %s", e.Status, e.URL)
	}
	return fmt.Sprintf("http status %d from %s: %s", e.Status, e.URL, body)
}
