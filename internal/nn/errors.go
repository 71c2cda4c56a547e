package nn

import "errors"

var (
	ErrNotCompiled       = errors.New("model is not compiled")
	ErrUnknownLoss       = errors.New("unknown loss")
	ErrUnknownOptimizer  = errors.New("unknown optimizer")
	ErrUnknownActivation = errors.New("unknown activation")
	ErrShapeMismatch     = errors.New("shape mismatch")
	ErrTokenOutOfRange   = errors.New("token index out of range")
	ErrEmptyBatch        = errors.New("empty input")
	ErrBadConfig         = errors.New("invalid layer configuration")
	ErrMissingWeight     = errors.New("missing weight")
)
