package types

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrNoPortfolio is returned while the worker has not seeded the portfolio yet.
	ErrNoPortfolio = errors.New("no portfolio")
)

// Kind classifies failures so callers can decide whether to retry.
type Kind int

const (
	KindTransient Kind = iota + 1
	KindMissingData
	KindNotification
	KindPersistence
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindMissingData:
		return "missing_data"
	case KindNotification:
		return "notification"
	case KindPersistence:
		return "persistence"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsRetryable reports whether the next cycle may succeed without operator action.
// Config errors are fatal; everything else is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) != KindConfig
}
