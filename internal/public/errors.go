package public

import (
	"net/http"
)

// HTTPError makes a URL handler answer with a specific status.
type HTTPError struct {
	Code int
	Msg  string
}

func (e *HTTPError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return http.StatusText(e.Code)
}

// NotFound is the error handlers return for unknown documents.
func NotFound() *HTTPError {
	return &HTTPError{Code: http.StatusNotFound}
}
