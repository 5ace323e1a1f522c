package recgo

import (
	"github.com/hupe1980/recgo/engine"
)

// ErrInvalidK is returned when a result limit is not positive.
var ErrInvalidK = engine.ErrInvalidK

// ErrDimensionMismatch indicates a vector width, or a list length, that
// disagrees with what the call expects. Nothing is mutated.
type ErrDimensionMismatch = engine.ErrDimensionMismatch

// ErrFactorization wraps a factorization failure. Fit keeps the previous state.
type ErrFactorization = engine.ErrFactorization

// ErrUnknownEntity indicates a position or id that does not exist.
type ErrUnknownEntity = engine.ErrUnknownEntity

// ErrPersistence wraps an I/O failure while saving or loading. Version markers
// keep their pre-call values.
type ErrPersistence = engine.ErrPersistence
