package usefetch

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoURL is reported on the hook's logger when an execution has no URL to
// request. It is never stored in State.
var ErrNoURL = errors.New("usefetch: no url to request")

// StatusError is stored in State when a response carries a status outside
// the 2xx class.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("usefetch: http error, status: %d", e.StatusCode)
}

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// isCanceled reports whether err stems from a cancelled request token.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
