package engine

import (
	"errors"
	"fmt"

	"github.com/hupe1980/recgo/factor"
	"github.com/hupe1980/recgo/hnsw"
)

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("k must be positive")

// Entity kinds reported by ErrUnknownEntity.
const (
	KindUser     = "user"
	KindItem     = "item"
	KindPlaylist = "playlist"
)

// ErrDimensionMismatch indicates a vector width that disagrees with the
// configured factor width. Nothing is mutated when it is returned.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrFactorization wraps a failure of the Factorizer. Fit leaves the previous
// state intact when it is returned.
type ErrFactorization struct {
	cause error
}

func (e *ErrFactorization) Error() string {
	return fmt.Sprintf("factorization failed: %v", e.cause)
}

func (e *ErrFactorization) Unwrap() error { return e.cause }

// ErrUnknownEntity indicates a position or id that does not exist and no
// recalculation path is available.
type ErrUnknownEntity struct {
	Kind     string
	Position int
	ID       string
}

func (e *ErrUnknownEntity) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("unknown %s %q", e.Kind, e.ID)
	}

	return fmt.Sprintf("unknown %s at position %d", e.Kind, e.Position)
}

// ErrPersistence wraps an I/O failure while saving or loading a snapshot.
type ErrPersistence struct {
	Op    string
	Name  string
	cause error
}

// NewErrPersistence wraps cause for the blob name touched by op.
func NewErrPersistence(op, name string, cause error) *ErrPersistence {
	return &ErrPersistence{Op: op, Name: name, cause: cause}
}

func (e *ErrPersistence) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.cause)
	}

	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Name, e.cause)
}

func (e *ErrPersistence) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var hdm *hnsw.ErrDimensionMismatch
	if errors.As(err, &hdm) {
		return &ErrDimensionMismatch{Expected: hdm.Expected, Actual: hdm.Actual, cause: err}
	}

	var fdm *factor.ErrDimensionMismatch
	if errors.As(err, &fdm) {
		return &ErrDimensionMismatch{Expected: fdm.Expected, Actual: fdm.Actual, cause: err}
	}

	return err
}
