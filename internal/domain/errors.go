package domain

import "errors"

// ErrInvalidTaskTransition is returned by TaskRun.Transition for any move
// not enumerated by the §4.6 state machine (I5: terminal states are final).
var ErrInvalidTaskTransition = errors.New("invalid task state transition")
