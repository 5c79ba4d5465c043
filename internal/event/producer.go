package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ensp1re/beaura-api/internal/domain"
	pkgkafka "github.com/ensp1re/beaura-api/pkg/kafka"
)

// Kafka topic constants for account domain events.
const (
	TopicAccountRegistered    = "beaura.account.registered"
	TopicAccountEmailVerified = "beaura.account.email_verified"
	TopicAccountPasswordReset = "beaura.account.password_reset"
	TopicAccountDeleted       = "beaura.account.deleted"
)

// Aggregate type constant.
const AggregateTypeAccount = "account"

// Source identifier for events originating from this API.
const SourceBeauraAPI = "beaura-api"

// AccountRegisteredData is the payload for an account.registered event.
type AccountRegisteredData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// AccountEmailVerifiedData is the payload for an account.email_verified event.
type AccountEmailVerifiedData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AccountPasswordResetData is the payload for an account.password_reset event.
type AccountPasswordResetData struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// AccountDeletedData is the payload for an account.deleted event.
type AccountDeletedData struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Producer publishes account domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishAccountRegistered publishes an account.registered event.
func (p *Producer) PublishAccountRegistered(ctx context.Context, account *domain.Account) error {
	data := AccountRegisteredData{
		ID:       account.ID,
		Username: account.Username,
		Email:    account.Email,
		Role:     account.Role,
	}

	event, err := pkgkafka.NewEvent(TopicAccountRegistered, account.ID, AggregateTypeAccount, SourceBeauraAPI, data)
	if err != nil {
		return fmt.Errorf("create account.registered event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountRegistered, event); err != nil {
		return fmt.Errorf("publish account.registered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.registered event",
		slog.String("account_id", account.ID),
		slog.String("email", account.Email),
	)

	return nil
}

// PublishAccountEmailVerified publishes an account.email_verified event.
func (p *Producer) PublishAccountEmailVerified(ctx context.Context, account *domain.Account) error {
	data := AccountEmailVerifiedData{
		ID:    account.ID,
		Email: account.Email,
	}

	event, err := pkgkafka.NewEvent(TopicAccountEmailVerified, account.ID, AggregateTypeAccount, SourceBeauraAPI, data)
	if err != nil {
		return fmt.Errorf("create account.email_verified event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountEmailVerified, event); err != nil {
		return fmt.Errorf("publish account.email_verified event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.email_verified event",
		slog.String("account_id", account.ID),
	)

	return nil
}

// PublishAccountPasswordReset publishes an account.password_reset event.
func (p *Producer) PublishAccountPasswordReset(ctx context.Context, accountID, email string) error {
	data := AccountPasswordResetData{
		AccountID: accountID,
		Email:     email,
	}

	event, err := pkgkafka.NewEvent(TopicAccountPasswordReset, accountID, AggregateTypeAccount, SourceBeauraAPI, data)
	if err != nil {
		return fmt.Errorf("create account.password_reset event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountPasswordReset, event); err != nil {
		return fmt.Errorf("publish account.password_reset event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.password_reset event",
		slog.String("account_id", accountID),
	)

	return nil
}

// PublishAccountDeleted publishes an account.deleted event.
func (p *Producer) PublishAccountDeleted(ctx context.Context, account *domain.Account) error {
	data := AccountDeletedData{
		ID:    account.ID,
		Email: account.Email,
	}

	event, err := pkgkafka.NewEvent(TopicAccountDeleted, account.ID, AggregateTypeAccount, SourceBeauraAPI, data)
	if err != nil {
		return fmt.Errorf("create account.deleted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountDeleted, event); err != nil {
		return fmt.Errorf("publish account.deleted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.deleted event",
		slog.String("account_id", account.ID),
	)

	return nil
}
