package chat

import (
	"context"

	"ChatPipe/logger"
	"ChatPipe/module/chat/event"
	"ChatPipe/service/natsx"

	"go.uber.org/zap"
)

// Dispatcher receives bus events and fans them out to local sessions.
type Dispatcher struct {
	mgr *ConnManager
	fan *Fanout
}

func NewDispatcher(mgr *ConnManager, fan *Fanout) *Dispatcher {
	return &Dispatcher{mgr: mgr, fan: fan}
}

// HandleBroadcast is the bus subscription callback. Deserialization failures
// are logged and dropped; they must never tear down the subscription loop.
func (d *Dispatcher) HandleBroadcast(_ context.Context, msg natsx.NatsxMessage) error {
	env, err := event.DecodeEnvelope(msg.Data)
	if err != nil {
		logger.Error("undecodable broadcast dropped", zap.Error(err))
		return nil
	}

	switch env.Kind {
	case event.KindMessageNew:
		var p event.MessagePayload
		if err := env.Decode(&p); err != nil {
			logger.Error("bad message payload dropped", zap.Error(err))
			return nil
		}
		d.fan.Broadcast(d.mgr.ClientsForChannel(p.ChannelID), msg.Data)

	case event.KindReadUpdate:
		var p event.ReadPayload
		if err := env.Decode(&p); err != nil {
			logger.Error("bad read payload dropped", zap.Error(err))
			return nil
		}
		d.fan.Broadcast(d.mgr.ClientsForChannel(p.ChannelID), msg.Data)

	case event.KindUnreadCount:
		var p event.UnreadPayload
		if err := env.Decode(&p); err != nil {
			logger.Error("bad unread payload dropped", zap.Error(err))
			return nil
		}
		d.fan.Broadcast(d.mgr.ClientsForUser(p.UserID), msg.Data)

	default:
		logger.Warn("unknown broadcast kind dropped", zap.String("kind", env.Kind))
	}
	return nil
}
