package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/port"
)

// Routing keys on the topic exchange.
const (
	RoutingUserPrefix = "notify.user."
	RoutingRolePrefix = "notify.role."
	RoutingMail       = "mail.send"
)

// RoleMessage is the body published for role-wide notifications.
type RoleMessage struct {
	Role    domain.Role `json:"role"`
	Message string      `json:"message"`
}

// Rabbit publishes notifications and mail requests as JSON on a topic
// exchange; delivery workers live elsewhere.
type Rabbit struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex
}

var (
	_ port.Notifier = (*Rabbit)(nil)
	_ port.Mailer   = (*Rabbit)(nil)
)

func NewRabbit(url, exchange string) (*Rabbit, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbit: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Rabbit{conn: conn, ch: ch, exchange: exchange}, nil
}

func (r *Rabbit) Close() {
	if r.ch != nil {
		_ = r.ch.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

func (r *Rabbit) PublishJSON(ctx context.Context, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch.PublishWithContext(ctx, r.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (r *Rabbit) Notify(ctx context.Context, n port.Notification) error {
	return r.PublishJSON(ctx, RoutingUserPrefix+n.Category, n)
}

func (r *Rabbit) NotifyRole(ctx context.Context, role domain.Role, message string) error {
	return r.PublishJSON(ctx, RoutingRolePrefix+string(role), RoleMessage{Role: role, Message: message})
}

func (r *Rabbit) Send(ctx context.Context, mail port.Mail) error {
	return r.PublishJSON(ctx, RoutingMail, mail)
}
