package videopublisher

import "errors"

var (
	ErrAPIFailure      = errors.New("publish service failed")
	ErrNoContentSource = errors.New("no content source configured for auto_generate")
)
