package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/wallau/shop-api/internal/model"
	"github.com/wallau/shop-api/internal/repository"
)

const (
	confirmationQueue = "order.confirmations"
	dlxExchange       = "order.confirmations.dlx"
	dlqQueueName      = "order.confirmations.dlq"
	idempotencyTTL    = 24 * time.Hour
)

// Mailer sends the actual confirmation. The default implementation only logs;
// an SMTP-backed one can be dropped in without touching the worker.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, user *model.User, order *model.Order) error
}

type LogMailer struct{ Log *slog.Logger }

func (m *LogMailer) SendOrderConfirmation(_ context.Context, user *model.User, order *model.Order) error {
	m.Log.Info("order confirmation sent",
		"order_id", order.ID, "email", user.Email, "total", order.Total())
	return nil
}

// MailWorker consumes order-confirmation messages. Each message carries only
// ids; the worker loads the current order and recipient so late consumption
// still sends accurate content.
type MailWorker struct {
	channel     *amqp.Channel
	orderRepo   repository.OrderRepository
	userRepo    repository.UserRepository
	mailer      Mailer
	redisClient *redis.Client
	log         *slog.Logger
	done        chan struct{}
}

func NewMailWorker(
	ch *amqp.Channel,
	orderRepo repository.OrderRepository,
	userRepo repository.UserRepository,
	mailer Mailer,
	redisClient *redis.Client,
	log *slog.Logger,
) *MailWorker {
	return &MailWorker{
		channel:     ch,
		orderRepo:   orderRepo,
		userRepo:    userRepo,
		mailer:      mailer,
		redisClient: redisClient,
		log:         log,
		done:        make(chan struct{}),
	}
}

// SetupRabbitMQ declares exchanges, queues, and bindings (DLX/DLQ).
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, confirmationQueue, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(confirmationQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": confirmationQueue,
	}); err != nil {
		return fmt.Errorf("declare confirmation queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

func (w *MailWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(confirmationQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("mail worker started")
	return nil
}

func (w *MailWorker) Stop() { close(w.done) }

func (w *MailWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var mailMsg model.MailMessage
	if err := json.Unmarshal(msg.Body, &mailMsg); err != nil {
		w.log.Error("unmarshal mail message", "error", err)
		_ = msg.Nack(false, false)
		return
	}

	log := w.log.With("order_id", mailMsg.OrderID, "user_id", mailMsg.UserID)

	// Idempotency check via Redis
	idempotencyKey := "mail_sent:" + mailMsg.OrderID.String()
	exists, err := w.redisClient.Exists(ctx, idempotencyKey).Result()
	if err != nil {
		log.Error("check idempotency key", "error", err)
		_ = msg.Nack(false, true)
		return
	}
	if exists > 0 {
		log.Info("confirmation already sent, skipping")
		_ = msg.Ack(false)
		return
	}

	if err := w.sendConfirmation(ctx, mailMsg); err != nil {
		log.Error("send confirmation failed", "error", err)
		_ = msg.Nack(false, false) // -> DLQ
		return
	}

	if err := w.redisClient.Set(ctx, idempotencyKey, "1", idempotencyTTL).Err(); err != nil {
		log.Error("set idempotency key", "error", err)
	}

	_ = msg.Ack(false)
	log.Info("confirmation processed")
}

func (w *MailWorker) sendConfirmation(ctx context.Context, msg model.MailMessage) error {
	order, err := w.orderRepo.GetByID(ctx, msg.OrderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return fmt.Errorf("order not found: %s", msg.OrderID)
	}

	user, err := w.userRepo.GetByID(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user not found: %s", msg.UserID)
	}

	return w.mailer.SendOrderConfirmation(ctx, user, order)
}
