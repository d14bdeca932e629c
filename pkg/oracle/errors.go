package oracle

import "errors"

var (
	ErrUnavailable   = errors.New("oracle unavailable")
	ErrAPIFailure    = errors.New("oracle returned an error")
	ErrEmptyResponse = errors.New("oracle returned an empty response")
)
