package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/erazemk/najdeno/internal/model"
)

// Subject carries item-created events between server instances.
const Subject = "najdeno.items.created"

const originHeader = "Najdeno-Origin"

// NATSBridge publishes local items to NATS and relays items published by
// other instances into the local hub.
type NATSBridge struct {
	conn   *nats.Conn
	hub    *Hub
	origin string
	sub    *nats.Subscription
}

// ConnectNATS connects to a NATS server with reconnect handling.
func ConnectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("najdeno"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	return nc, nil
}

// NewNATSBridge subscribes to Subject and starts relaying remote items into hub.
func NewNATSBridge(nc *nats.Conn, hub *Hub) (*NATSBridge, error) {
	b := &NATSBridge{conn: nc, hub: hub, origin: uuid.NewString()}

	sub, err := nc.Subscribe(Subject, b.handle)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", Subject, err)
	}
	b.sub = sub
	return b, nil
}

// Publish delivers item to the local hub and to other instances.
func (b *NATSBridge) Publish(item model.Item) {
	b.hub.Publish(item)

	data, err := json.Marshal(item)
	if err != nil {
		slog.Error("failed to encode item event", "item", item.ID, "error", err)
		return
	}
	msg := nats.NewMsg(Subject)
	msg.Header.Set(originHeader, b.origin)
	msg.Data = data
	if err := b.conn.PublishMsg(msg); err != nil {
		slog.Error("failed to publish item event", "item", item.ID, "error", err)
	}
}

// Flush waits until the server has processed all published events.
func (b *NATSBridge) Flush() error {
	return b.conn.Flush()
}

// Close unsubscribes from NATS. The connection stays open.
func (b *NATSBridge) Close() error {
	if b.sub == nil {
		return nil
	}
	return b.sub.Unsubscribe()
}

func (b *NATSBridge) handle(msg *nats.Msg) {
	if msg.Header.Get(originHeader) == b.origin {
		return
	}
	var item model.Item
	if err := json.Unmarshal(msg.Data, &item); err != nil {
		slog.Warn("dropping malformed item event", "error", err)
		return
	}
	b.hub.Publish(item)
}
