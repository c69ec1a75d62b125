package sim

import (
	"fmt"
	"log"
	"strings"
)

// DebugLogger is a hook that prints the hook sites whose debug flag is
// enabled. The flag letters follow the classic Nachos `-d` convention, with
// '+' enabling every position.
type DebugLogger struct {
	*log.Logger
	flags string
}

// NewDebugLogger returns a DebugLogger that writes into the logger.
func NewDebugLogger(logger *log.Logger, flags string) *DebugLogger {
	return &DebugLogger{
		Logger: logger,
		flags:  flags,
	}
}

// Enabled tells if the debug letter is turned on.
func (h *DebugLogger) Enabled(flag byte) bool {
	if h.flags == "" {
		return false
	}

	return strings.IndexByte(h.flags, '+') >= 0 ||
		strings.IndexByte(h.flags, flag) >= 0
}

// Func writes the hook information into the logger.
func (h *DebugLogger) Func(ctx HookCtx) {
	if ctx.Pos == nil || !h.Enabled(ctx.Pos.Flag) {
		return
	}

	msg := fmt.Sprintf("%d, %s", ctx.Now, ctx.Pos.Name)
	if ctx.Item != nil {
		msg += fmt.Sprintf(", %v", ctx.Item)
	}

	if ctx.Detail != nil {
		msg += fmt.Sprintf(", %v", ctx.Detail)
	}

	h.Logger.Print(msg)
}
