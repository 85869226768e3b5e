// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"transcript-sync-service/internal/observability/metrics"
)

// Publisher publishes reconciliation events to separate Kafka topics:
// committed-transcript updates and pending-update resolutions.
type Publisher struct {
	writerCommitted  *kafka.Writer
	writerResolution *kafka.Writer
	principal        string
	topicCommitted   string
	topicResolution  string
	enabled          bool
	metrics          *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers         []string
	TopicCommitted  string
	TopicResolution string
	Principal       string
	Enabled         bool
}

// New creates a new Kafka event publisher with separate topics for
// committed-text updates and sync resolutions.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:       cfg.Principal,
			topicCommitted:  cfg.TopicCommitted,
			topicResolution: cfg.TopicResolution,
			enabled:         false,
			metrics:         m,
		}
	}

	// Longer dial timeouts for DNS resolution in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerCommitted := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicCommitted,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	writerResolution := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicResolution,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicCommitted", cfg.TopicCommitted).
		Str("topicResolution", cfg.TopicResolution).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerCommitted:  writerCommitted,
		writerResolution: writerResolution,
		principal:        cfg.Principal,
		topicCommitted:   cfg.TopicCommitted,
		topicResolution:  cfg.TopicResolution,
		enabled:          true,
		metrics:          m,
	}
}

// PublishCommitted publishes a committed-transcript update.
func (p *Publisher) PublishCommitted(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerCommitted, p.topicCommitted, "committed", key, event)
}

// PublishResolution publishes a pending-update resolution.
func (p *Publisher) PublishResolution(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerResolution, p.topicResolution, "resolution", key, event)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(topic)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerCommitted != nil {
		if e := p.writerCommitted.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing committed writer")
			err = e
		}
	}
	if p.writerResolution != nil {
		if e := p.writerResolution.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing resolution writer")
			err = e
		}
	}
	return err
}
