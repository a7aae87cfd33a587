package tools

import (
	"errors"
	"fmt"
)

// ErrToolUnavailable is returned when a call names a tool that is not
// registered. The model sees the failure as a tool message and can
// correct itself on the next round.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

// ErrTimeout reports a tool that ran past its deadline.
var ErrTimeout = errors.New("tool execution timed out")
