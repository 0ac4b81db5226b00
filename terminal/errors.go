package terminal

import "errors"

// ErrMaxTerminalsReached is returned by Create when the Running count is
// already at the configured maximum.
var ErrMaxTerminalsReached = errors.New("terminal: max terminals reached")

// ErrTerminalNotFound is returned by operations addressing a terminal id
// that the registry doesn't (or no longer) knows about.
var ErrTerminalNotFound = errors.New("terminal: not found")
