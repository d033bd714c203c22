package producer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/boyangli/telemetry-ingest/config"
	"github.com/boyangli/telemetry-ingest/models"
)

// KafkaProducer publishes one notice per committed telemetry file
type KafkaProducer struct {
	producer     *kafka.Producer
	config       *config.KafkaConfig
	deliveryChan chan kafka.Event
	logger       *zap.Logger

	// Metrics
	messagesSent   atomic.Int64
	messagesAcked  atomic.Int64
	messagesFailed atomic.Int64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// Retry configuration
	maxRetries  int
	baseBackoff time.Duration
}

// ConfigMap translates cfg into librdkafka producer settings
func ConfigMap(cfg *config.KafkaConfig) *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers": cfg.BootstrapServers,
		"security.protocol": cfg.SecurityProtocol,

		"compression.type":                      cfg.CompressionType,
		"acks":                                  cfg.Acks,
		"max.in.flight.requests.per.connection": cfg.MaxInFlight,
		"linger.ms":                             cfg.LingerMS,
		"batch.size":                            cfg.BatchSize,

		// a retried produce must not duplicate a notice
		"enable.idempotence": true,

		"request.timeout.ms":  30000,
		"delivery.timeout.ms": 120000,
	}

	if cfg.SASLUsername != "" {
		(*cm)["sasl.mechanism"] = cfg.SASLMechanism
		(*cm)["sasl.username"] = cfg.SASLUsername
		(*cm)["sasl.password"] = cfg.SASLPassword
	}
	return cm
}

// NewKafkaProducer creates a producer and starts its delivery report handler
func NewKafkaProducer(cfg *config.KafkaConfig, logger *zap.Logger) (*KafkaProducer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	p, err := kafka.NewProducer(ConfigMap(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	kp := &KafkaProducer{
		producer:     p,
		config:       cfg,
		deliveryChan: make(chan kafka.Event, 10000),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		maxRetries:   5,
		baseBackoff:  100 * time.Millisecond,
	}

	kp.wg.Add(1)
	go kp.handleDeliveryReports()

	logger.Info("Kafka producer initialized",
		zap.String("topic", cfg.Topic),
		zap.String("servers", cfg.BootstrapServers))
	return kp, nil
}

func (kp *KafkaProducer) handleDeliveryReports() {
	defer kp.wg.Done()

	for {
		select {
		case <-kp.ctx.Done():
			return
		case e := <-kp.deliveryChan:
			m, ok := e.(*kafka.Message)
			if !ok {
				continue
			}

			if m.TopicPartition.Error != nil {
				kp.messagesFailed.Add(1)
				kp.logger.Error("Ingest notice delivery failed",
					zap.ByteString("key", m.Key),
					zap.Error(m.TopicPartition.Error))
			} else {
				kp.messagesAcked.Add(1)
				kp.logger.Debug("Ingest notice delivered",
					zap.ByteString("key", m.Key),
					zap.Int32("partition", m.TopicPartition.Partition),
					zap.String("offset", m.TopicPartition.Offset.String()))
			}
		}
	}
}

// buildMessage keys the notice by ingest id so redeliveries are recognizable
func buildMessage(topic *string, summary *models.IngestSummary) (*kafka.Message, error) {
	payload, err := summary.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize ingest summary: %w", err)
	}

	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(summary.IngestID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(summary.Kind.String())},
			{Key: "file", Value: []byte(summary.Path)},
		},
	}, nil
}

// Notify enqueues a notice for summary, retrying retriable errors with
// exponential backoff. Delivery is confirmed asynchronously.
func (kp *KafkaProducer) Notify(ctx context.Context, summary *models.IngestSummary) error {
	message, err := buildMessage(&kp.config.Topic, summary)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= kp.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := kp.baseBackoff * time.Duration(1<<uint(attempt-1))
			kp.logger.Debug("Retrying ingest notice",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", kp.maxRetries),
				zap.Duration("backoff", backoff))

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := kp.producer.Produce(message, kp.deliveryChan)
		if err == nil {
			kp.messagesSent.Add(1)
			return nil
		}

		lastErr = err

		if kafkaErr, ok := err.(kafka.Error); ok {
			if !kafkaErr.IsRetriable() && kafkaErr.Code() != kafka.ErrQueueFull {
				return fmt.Errorf("non-retriable error: %w", err)
			}
		}
	}

	kp.messagesFailed.Add(1)
	return fmt.Errorf("failed after %d retries: %w", kp.maxRetries, lastErr)
}

// Flush waits for all pending messages to be delivered
func (kp *KafkaProducer) Flush(timeout time.Duration) {
	remaining := kp.producer.Flush(int(timeout.Milliseconds()))
	if remaining > 0 {
		kp.logger.Warn("Messages still queued after flush timeout",
			zap.Int("remaining", remaining),
			zap.Duration("timeout", timeout))
	}
}

// GetMetrics returns current producer metrics
func (kp *KafkaProducer) GetMetrics() map[string]int64 {
	return map[string]int64{
		"messages_sent":    kp.messagesSent.Load(),
		"messages_acked":   kp.messagesAcked.Load(),
		"messages_failed":  kp.messagesFailed.Load(),
		"messages_pending": kp.messagesSent.Load() - kp.messagesAcked.Load() - kp.messagesFailed.Load(),
	}
}

// LogMetrics writes current metrics to the log
func (kp *KafkaProducer) LogMetrics() {
	metrics := kp.GetMetrics()
	kp.logger.Info("Kafka producer totals",
		zap.Int64("sent", metrics["messages_sent"]),
		zap.Int64("acked", metrics["messages_acked"]),
		zap.Int64("failed", metrics["messages_failed"]),
		zap.Int64("pending", metrics["messages_pending"]))
}

// Close flushes outstanding notices and shuts the producer down
func (kp *KafkaProducer) Close() {
	kp.Flush(30 * time.Second)

	// stop the report handler only after flush has drained deliveries
	kp.cancel()
	kp.wg.Wait()

	kp.producer.Close()
	kp.LogMetrics()
}
