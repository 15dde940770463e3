package protocol

import "errors"

// Frame-level parse failures.
var (
	// ErrShortRead means the buffer ends before the frame does. Callers
	// holding a partial read should retry once more bytes arrive.
	ErrShortRead = errors.New("incomplete frame")

	// ErrMalformedFrame means the bytes cannot be a frame no matter how
	// many more arrive.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Command-level parse failures.
var (
	ErrMalformedCommand = errors.New("command must be an array of bulk strings")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMissingArg       = errors.New("missing argument")
	ErrUnsupportedArg   = errors.New("unsupported argument")
	ErrBadInteger       = errors.New("invalid integer argument")
)
