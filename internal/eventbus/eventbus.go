// Package eventbus is an optional, best-effort publisher that announces
// completed rounds on a RabbitMQ exchange so external consumers (the
// front-end, alerting) don't have to poll the status endpoint. A
// publish failure never affects the job that produced the round.
package eventbus

import (
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"treasurybot/internal/store"
)

const queueName = "treasurybot.rounds"

// Publisher publishes completed rounds. A nil Publisher (no RabbitMQ URL
// configured) is valid and PublishRound becomes a no-op.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Connect dials url and declares the durable queue. If url is empty,
// Connect returns (nil, nil): the feature is simply off.
func Connect(url string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("eventbus: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventbus: open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("eventbus: declare queue: %w", err)
	}

	return &Publisher{conn: conn, channel: ch}, nil
}

// PublishRound announces a completed round. Any error is logged and
// swallowed; the round is already durable in the Store regardless.
func (p *Publisher) PublishRound(r store.Round) {
	if p == nil || p.channel == nil {
		return
	}

	body, err := json.Marshal(r)
	if err != nil {
		log.WithError(err).Warn("eventbus: failed to marshal round")
		return
	}

	err = p.channel.Publish("", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		log.WithError(err).WithField("round_id", r.ID).Warn("eventbus: publish failed")
	}
}

// Close tears down the channel and connection. Safe to call on a nil
// Publisher.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
