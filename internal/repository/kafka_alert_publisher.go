package repository

import (
	"context"

	"ChainSignal/internal/domain/models"
	domrepo "ChainSignal/internal/domain/repository"
)

// MessagePublisher is the subset of pkg/kafka.Producer used here.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaAlertPublisher writes each alert as JSON keyed by category, so alerts
// of one rule stay ordered within a partition.
type KafkaAlertPublisher struct {
	producer MessagePublisher
	topic    string
}

func NewKafkaAlertPublisher(p MessagePublisher, topic string) *KafkaAlertPublisher {
	return &KafkaAlertPublisher{producer: p, topic: topic}
}

func (p *KafkaAlertPublisher) PublishAlert(ctx context.Context, a models.Alert) error {
	return p.producer.Publish(ctx, p.topic, []byte(a.Category), a)
}

func (p *KafkaAlertPublisher) Close() error { return p.producer.Close() }

var _ domrepo.AlertPublisher = (*KafkaAlertPublisher)(nil)
