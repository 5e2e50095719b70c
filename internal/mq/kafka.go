// Package mq publishes derived weather events to Kafka.
package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/i474232898/road-weather/internal/weather"
)

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per event, keyed by event ID so retries of
// the same event land on the same partition.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
	now    func() time.Time
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 250 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// NewPublisher creates a Publisher on top of a Kafka writer for topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	return newPublisher(NewWriter(brokers, topic), logger)
}

func newPublisher(w messageWriter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{writer: w, logger: logger, now: time.Now}
}

// PublishEvents implements weather.EventPublisher.
func (p *Publisher) PublishEvents(ctx context.Context, locationKey string, events []weather.WeatherEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, len(events))
	for i := range events {
		msg, err := eventMessage(locationKey, events[i], p.now().UTC())
		if err != nil {
			return err
		}
		msgs[i] = msg
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d events for %s: %w", len(events), locationKey, err)
	}
	p.logger.Debug("events published", "location", locationKey, "count", len(events))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func eventMessage(locationKey string, event weather.WeatherEvent, now time.Time) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("serialize weather event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.ID),
		Value: data,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "location", Value: []byte(locationKey)},
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "severity", Value: []byte(event.Severity)},
		},
	}, nil
}
