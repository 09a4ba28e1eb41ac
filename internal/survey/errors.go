package survey

import "errors"

var (
	ErrNoUser     = errors.New("survey: user id is required")
	ErrBadRequest = errors.New("survey: bad request")
)
