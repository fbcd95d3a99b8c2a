package worker

import "errors"

var (
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrHandlerPanic       = errors.New("handler panicked")
	ErrUnknownWorker      = errors.New("unknown worker")
	ErrDuplicateWorker    = errors.New("worker already registered")
)
