package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/carpool-matching/internal/models"
)

// NotificationProducer mirrors the notification audit stream onto Kafka
// so reporting and the messaging channel can consume it out of band.
type NotificationProducer struct {
	writer *kafka.Writer
}

func NewNotificationProducer(brokers []string, topic string) *NotificationProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &NotificationProducer{writer: w}
}

func (p *NotificationProducer) PublishNotification(ctx context.Context, n models.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(n)
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(n.UserID), Value: b})
}

func (p *NotificationProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
