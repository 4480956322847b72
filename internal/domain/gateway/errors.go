package gateway

import "errors"

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrFunctionNotFound = errors.New("unknown function")
)
