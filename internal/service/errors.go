package service

import (
	"errors"
	"fmt"
)

// ErrNotFound marks queries whose key has no matching rows. Handlers map
// it to HTTP 404.
var ErrNotFound = errors.New("not found")

// ClientError marks failures caused by the request itself (malformed
// upload, bad parameters). Handlers map it to HTTP 400 so downstream retry
// logic knows not to repeat the request unchanged.
type ClientError struct {
	msg string
}

func (e *ClientError) Error() string {
	return e.msg
}

func clientErrorf(format string, args ...interface{}) *ClientError {
	return &ClientError{msg: fmt.Sprintf(format, args...)}
}

// IsClientError reports whether err is a ClientError
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}
