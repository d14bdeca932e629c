package contentgenerator

import "errors"

var ErrMissingParameter = errors.New("missing required parameter")
