package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrStateNotFound = errors.New("state not found")
	ErrStateCorrupt  = errors.New("state corrupt")

	// ErrFatalOrderFault means an order reached a terminal status the bot cannot
	// interpret. Trading must stop and every open order must be cancelled.
	ErrFatalOrderFault = errors.New("fatal order fault")

	// ErrAborted is returned by the controller after the abort path ran.
	ErrAborted = errors.New("trading aborted")
)

// ExchangeError is a failed gateway call. It is transient unless it wraps
// one of the sentinels above.
type ExchangeError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ExchangeError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}
