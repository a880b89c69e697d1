package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue receives every notification.
const DefaultQueue = "auth.notifications"

type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// dialChannel opens a connection and a channel on it. The returned func
// closes both.
var dialChannel = func(url string) (channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq: channel open: %w", err)
	}
	return ch, func() error {
		_ = ch.Close()
		return conn.Close()
	}, nil
}

// AMQPNotifier publishes notifications as persistent JSON messages to a
// durable queue on the default exchange. A connection is opened per message;
// notifications are rare and this keeps broker restarts invisible.
type AMQPNotifier struct {
	url    string
	queue  string
	logger logging.Logger
	now    func() time.Time
}

func NewAMQPNotifier(url, queue string, logger logging.Logger) *AMQPNotifier {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPNotifier{url: url, queue: queue, logger: logger, now: time.Now}
}

func (n *AMQPNotifier) Notify(ctx context.Context, msg Notification) error {
	ch, closeFn, err := dialChannel(n.url)
	if err != nil {
		n.logger.Error(ctx, "notification publish failed", "kind", msg.Kind, "error", err)
		return err
	}
	defer func() { _ = closeFn() }()

	if _, err := ch.QueueDeclare(n.queue, true, false, false, false, nil); err != nil {
		n.logger.Error(ctx, "notification queue declare failed", "queue", n.queue, "error", err)
		return fmt.Errorf("rabbitmq: queue declare: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal notification: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.now().UTC(),
		Type:         string(msg.Kind),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", n.queue, false, false, pub); err != nil {
		n.logger.Error(ctx, "notification publish failed", "kind", msg.Kind, "error", err)
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	n.logger.Debug(ctx, "notification published", "kind", msg.Kind, "user_id", msg.UserID)
	return nil
}

func (n *AMQPNotifier) Close() error { return nil }
