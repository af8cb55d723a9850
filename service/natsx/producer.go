package natsx

import (
	"context"
	"fmt"
)

// NatsxProducer is the fire-and-forget publish side.
type NatsxProducer struct{ c *NatsxClient }

func NewNatsxProducer(c *NatsxClient) *NatsxProducer { return &NatsxProducer{c: c} }

// Publish sends by registered biz route. The send returns as soon as the
// message is handed to the connection; there is no delivery guarantee.
func (p *NatsxProducer) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	r, ok := p.c.route(biz)
	if !ok {
		return fmt.Errorf("route not found: %s", biz)
	}
	return p.c.sendCore(r.Subject, data, hdr)
}
