package task

import "errors"

var (
	ErrUnknownApp     = errors.New("unknown app")
	ErrUnknownCommand = errors.New("unknown command")
	ErrTaskRejected   = errors.New("task rejected: there is a current pending task")
	ErrRouterClosed   = errors.New("task router closed")
)
