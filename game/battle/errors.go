package battle

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("battle: invalid phase transition")
	ErrInvalidAction     = errors.New("battle: invalid action")
	ErrPrecondition      = errors.New("battle: precondition failed")
	ErrExternal          = errors.New("battle: external store failure")
	ErrUnrecoverable     = errors.New("battle: unrecoverable")
)

// Capture precondition failures, checked in this order.
var (
	ErrNotWild       = fmt.Errorf("%w: not a wild battle", ErrPrecondition)
	ErrTargetFainted = fmt.Errorf("%w: target has fainted", ErrPrecondition)
	ErrUnknownBall   = fmt.Errorf("%w: unknown ball", ErrPrecondition)
	ErrNoBall        = fmt.Errorf("%w: no ball in inventory", ErrPrecondition)
)

func external(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrExternal, err)
}
