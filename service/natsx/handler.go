package natsx

import "context"

// NatsxMessage is the unified inbound message.
type NatsxMessage struct {
	Subject string
	Data    []byte
	Header  map[string]string
}

// NatsxHandler processes one inbound message. Errors are the handler's
// business only: the bus has no acknowledgment to withhold.
type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware wraps handlers (logging, metrics).
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain composes middlewares around a handler.
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
