package engine

import "errors"

var (
	ErrValidation    = errors.New("validation failed")
	ErrAuthorization = errors.New("role not permitted")
	ErrNotFound      = errors.New("patient record not found")
)
