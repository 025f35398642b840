package exposure

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
)
