package clocktick

import (
	"errors"
	"strconv"
	"strings"
)

// ErrJobIDRequired is returned before any network call when a job id is
// empty where one is required.
var ErrJobIDRequired = errors.New("clocktick: job id is required")

// APIError is a structured error reported by the scheduling service itself,
// marked by the X-Is-Application-Error response header.
type APIError struct {
	Type    string   `json:"type"`
	Reasons []string `json:"reasons"`
}

func (e APIError) Error() string {
	return e.Type + ": " + strings.Join(e.Reasons, ", ")
}

// StatusError is any other non-2xx response.
type StatusError struct {
	Status int
}

func (e StatusError) Error() string {
	return "request failed with status " + strconv.Itoa(e.Status)
}
