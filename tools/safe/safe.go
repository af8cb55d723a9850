package safe

import (
	"ChatPipe/logger"

	"go.uber.org/zap"
)

// Go starts a goroutine that recovers from panics so a single bad handler
// cannot take down the process.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panic recovered", zap.Any("panic", r))
			}
		}()
		f()
	}()
}
