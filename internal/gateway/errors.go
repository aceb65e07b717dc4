package gateway

import (
	"errors"
	"net/http"

	"github.com/openai/openai-go"
)

// PermanentError marks a failure retrying cannot fix: malformed request,
// bad credentials, unknown model. The activity layer converts it into a
// non-retryable application error.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err carries a PermanentError anywhere in
// its chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// classify wraps err as permanent when the API status says a retry cannot
// succeed. Timeouts, 429s and 5xx stay transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity:
			return &PermanentError{Err: err}
		}
	}
	return err
}
