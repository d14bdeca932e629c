package douyindownloader

import "errors"

var (
	ErrMissingParameter   = errors.New("missing required parameter")
	ErrAPIFailure         = errors.New("download service failed")
	ErrUnsupportedContent = errors.New("unsupported content type")
)
