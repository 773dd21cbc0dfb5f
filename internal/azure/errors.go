package azure

import "fmt"

// RemoteError is a non-2xx response. Message is the raw response body.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("azure devops returned HTTP %d", e.StatusCode)
	}
	return e.Message
}
