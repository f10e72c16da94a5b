package domain

import "errors"

// Error kinds shared by every workflow. They are terminal: callers wrap them
// with context and test with errors.Is.
var (
	ErrEmptyInput        = errors.New("empty input")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrCorruptModel      = errors.New("corrupt model")
	ErrModelNotFound     = errors.New("model not found")
	ErrNoCentroids       = errors.New("model has no centroids")
)
