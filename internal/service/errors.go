package service

import "errors"

// ErrValidation marks malformed input rejected before any store access.
// Callers distinguish it from the store sentinels (repository.ErrRecordNotFound,
// repository.ErrInsufficientStock, ...) with errors.Is.
var ErrValidation = errors.New("validation error")
