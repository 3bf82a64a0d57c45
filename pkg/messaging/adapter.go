package messaging

import (
	"context"
)

// HandlerFunc consumes a raw notification payload.
type HandlerFunc func([]byte) error

// SubscribeFunc runs handler for every message on channel until ctx is
// cancelled. Handler errors are swallowed so one bad payload does not kill
// the subscription; the payload is only a change signal anyway.
func SubscribeFunc(ctx context.Context, broker Broker, channel string, handler HandlerFunc) error {
	msgChan, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgChan {
			if err := handler(msg); err != nil {
				continue
			}
		}
	}()

	return nil
}
