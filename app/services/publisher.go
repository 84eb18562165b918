package services

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/carljohntruya-art/taskflow-auth/app/config"
)

// requestIDFromContext reads the request id the tracing middleware stored.
// Duplicated here rather than imported to avoid a cycle with the middleware
// package.
func requestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value("request_id").(string); ok {
		return requestID
	}
	return ""
}

// EventPublisher is the out-of-band notification collaborator. Delivery is
// best-effort: the caller logs failures and moves on.
type EventPublisher interface {
	PublishVerificationCode(ctx context.Context, email, name, code string) error
}

// RabbitMQPublisher publishes auth events to the auth.events topic exchange,
// where the mailer service picks them up.
type RabbitMQPublisher struct {
	ch *amqp.Channel
}

func NewRabbitMQPublisher(ch *amqp.Channel) *RabbitMQPublisher {
	return &RabbitMQPublisher{ch: ch}
}

type verificationCodeMessage struct {
	Type  string `json:"type"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Code  string `json:"code"`
}

func (p *RabbitMQPublisher) PublishVerificationCode(ctx context.Context, email, name, code string) error {
	msg := verificationCodeMessage{
		Type:  "email_verification",
		Email: email,
		Name:  name,
		Code:  code,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	headers := make(amqp.Table)
	if requestID := requestIDFromContext(ctx); requestID != "" {
		headers["X-Request-ID"] = requestID
	}

	return p.ch.PublishWithContext(
		ctx,
		config.AuthEventsExchange,
		"email.verification", // routing key
		false,                // mandatory
		false,                // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Headers:     headers,
		},
	)
}
