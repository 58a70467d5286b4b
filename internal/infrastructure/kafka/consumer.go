package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/example/ec-stock-reservation/internal/config"
	"github.com/example/ec-stock-reservation/internal/logging"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// ErrUnprocessable marks a message that will never succeed. Handlers wrap it
// so the consumer dead-letters the message without retrying.
var ErrUnprocessable = errors.New("message cannot be processed")

// ErrNotDeadLettered stops the consumer when a failed message could not be
// parked on the dead-letter topic. Its offset stays uncommitted so it is
// redelivered on restart.
var ErrNotDeadLettered = errors.New("failed message could not be dead-lettered")

// Dead-letter headers
const (
	HeaderError       = "x-error"
	HeaderAttempts    = "x-attempts"
	HeaderSourceTopic = "x-source-topic"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RetryPolicy bounds how long a failing message blocks its partition.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Consumer reads a topic as part of a consumer group. An offset is committed
// only after its message was handled or dead-lettered, so delivery is
// at-least-once.
type Consumer struct {
	reader messageReader
	dlq    messageWriter
	retry  RetryPolicy
	topic  string
	logger *zap.Logger
}

func NewConsumer(cfg config.KafkaConfig, retry RetryPolicy, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})

	var dlq messageWriter
	if cfg.DLQTopic != "" {
		dlq = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}

	return newConsumer(reader, dlq, retry, cfg.Topic, logger)
}

func newConsumer(reader messageReader, dlq messageWriter, retry RetryPolicy, topic string, logger *zap.Logger) *Consumer {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Consumer{
		reader: reader,
		dlq:    dlq,
		retry:  retry,
		topic:  topic,
		logger: logger.Named("consumer"),
	}
}

// Consume blocks until ctx is cancelled. Messages are processed one at a time
// so deltas of a partition are applied in order.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("failed to fetch message", zap.Error(err))
			if err := sleep(ctx, c.retry.InitialBackoff); err != nil {
				return err
			}
			continue
		}

		if err := c.process(ctx, msg, handler); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The message will be redelivered; the handler must tolerate that.
			c.logger.Warn("failed to commit offset",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

// process returns an error when ctx is cancelled or the message could not be
// dead-lettered. In both cases the offset must not be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message, handler MessageHandler) error {
	msgCtx := extractTrace(ctx, msg.Headers)
	backoff := c.retry.InitialBackoff

	for attempt := 1; ; attempt++ {
		err := handler(msgCtx, msg.Key, msg.Value)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, ErrUnprocessable) || attempt >= c.retry.MaxAttempts {
			return c.deadLetter(ctx, msg, err, attempt)
		}

		c.logger.Warn("message handling failed, retrying",
			zap.ByteString("key", msg.Key),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
		if c.retry.MaxBackoff > 0 && backoff > c.retry.MaxBackoff {
			backoff = c.retry.MaxBackoff
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error, attempts int) error {
	fields := []zap.Field{
		logging.Critical(),
		zap.ByteString("key", msg.Key),
		zap.ByteString("value", msg.Value),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	}

	if c.dlq == nil {
		c.logger.Error("message failed with no dead-letter topic, leaving it unacknowledged", fields...)
		return fmt.Errorf("%w: no dead-letter topic: %v", ErrNotDeadLettered, cause)
	}

	headers := append([]kafka.Header{}, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: HeaderError, Value: []byte(cause.Error())},
		kafka.Header{Key: HeaderAttempts, Value: []byte(strconv.Itoa(attempts))},
		kafka.Header{Key: HeaderSourceTopic, Value: []byte(c.topic)},
	)

	err := c.dlq.WriteMessages(context.WithoutCancel(ctx), kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    time.Now(),
	})
	if err != nil {
		c.logger.Error("failed to write dead letter, leaving message unacknowledged", append(fields, zap.NamedError("dlq_error", err))...)
		return fmt.Errorf("%w: %v", ErrNotDeadLettered, err)
	}
	c.logger.Error("message moved to dead-letter topic", fields...)
	return nil
}

func (c *Consumer) Close() error {
	err := c.reader.Close()
	if c.dlq != nil {
		if dlqErr := c.dlq.Close(); err == nil {
			err = dlqErr
		}
	}
	return err
}

func extractTrace(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, h := range headers {
		carrier[h.Key] = string(h.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
