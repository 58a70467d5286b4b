package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

// fakeReader serves a fixed set of messages and cancels the consume loop once
// they are exhausted.
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []kafka.Message
	commitErr error
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) == 0 {
		r.mu.Unlock()
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	r.mu.Unlock()
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commitErr != nil {
		return r.commitErr
	}
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func newTestConsumer(t *testing.T, msgs ...kafka.Message) (*Consumer, *fakeReader, *fakeWriter, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	reader := &fakeReader{messages: msgs, cancel: cancel}
	dlq := &fakeWriter{}
	retry := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}
	return newConsumer(reader, dlq, retry, "stock-reconciliation", zap.NewNop()), reader, dlq, ctx
}

func msgAt(offset int64, value string) kafka.Message {
	return kafka.Message{Key: []byte("1"), Value: []byte(value), Offset: offset}
}

// ============================================
// Producer Tests
// ============================================

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}

	err := p.Publish(context.Background(), "42", map[string]int{"quantity_delta": -3})

	require.NoError(t, err)
	require.Len(t, w.messages, 1)
	assert.Equal(t, []byte("42"), w.messages[0].Key)

	var body map[string]int
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &body))
	assert.Equal(t, -3, body["quantity_delta"])
}

func TestProducer_Publish_WriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := &Producer{writer: w}

	err := p.Publish(context.Background(), "1", struct{}{})

	assert.Error(t, err)
}

func TestProducer_Publish_EncodeError(t *testing.T) {
	p := &Producer{writer: &fakeWriter{}}

	err := p.Publish(context.Background(), "1", make(chan int))

	assert.Error(t, err)
}

func TestTraceHeaders_RoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := traceHeaders(ctx)
	got := trace.SpanContextFromContext(extractTrace(context.Background(), headers))

	assert.Equal(t, traceID, got.TraceID())
	assert.True(t, got.IsRemote())
}

// ============================================
// Consumer Tests
// ============================================

func TestConsumer_CommitsAfterHandling(t *testing.T) {
	c, reader, dlq, ctx := newTestConsumer(t, msgAt(0, "a"), msgAt(1, "b"))
	var handled []string

	err := c.Consume(ctx, func(ctx context.Context, key, value []byte) error {
		handled = append(handled, string(value))
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a", "b"}, handled)
	require.Len(t, reader.committed, 2)
	assert.Equal(t, int64(1), reader.committed[1].Offset)
	assert.Empty(t, dlq.messages)
}

func TestConsumer_RetriesTransientFailure(t *testing.T) {
	c, reader, dlq, ctx := newTestConsumer(t, msgAt(0, "a"))
	calls := 0

	_ = c.Consume(ctx, func(ctx context.Context, key, value []byte) error {
		calls++
		if calls < 3 {
			return errors.New("ledger write failed")
		}
		return nil
	})

	assert.Equal(t, 3, calls)
	assert.Len(t, reader.committed, 1)
	assert.Empty(t, dlq.messages)
}

func TestConsumer_ExhaustedRetriesGoToDLQ(t *testing.T) {
	c, reader, dlq, ctx := newTestConsumer(t, msgAt(7, "a"), msgAt(8, "b"))
	calls := map[string]int{}

	_ = c.Consume(ctx, func(ctx context.Context, key, value []byte) error {
		calls[string(value)]++
		if string(value) == "a" {
			return errors.New("still failing")
		}
		return nil
	})

	assert.Equal(t, 3, calls["a"])
	assert.Equal(t, 1, calls["b"], "the partition moves on after dead-lettering")
	require.Len(t, dlq.messages, 1)
	assert.Equal(t, []byte("a"), dlq.messages[0].Value)
	assert.Len(t, reader.committed, 2)

	headers := map[string]string{}
	for _, h := range dlq.messages[0].Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "3", headers[HeaderAttempts])
	assert.Equal(t, "stock-reconciliation", headers[HeaderSourceTopic])
	assert.Equal(t, "still failing", headers[HeaderError])
}

func TestConsumer_UnprocessableSkipsRetries(t *testing.T) {
	c, reader, dlq, ctx := newTestConsumer(t, msgAt(0, "{{"))
	calls := 0

	_ = c.Consume(ctx, func(ctx context.Context, key, value []byte) error {
		calls++
		return fmt.Errorf("%w: bad json", ErrUnprocessable)
	})

	assert.Equal(t, 1, calls)
	assert.Len(t, dlq.messages, 1)
	assert.Len(t, reader.committed, 1)
}

func TestConsumer_DLQWriteFailureLeavesOffset(t *testing.T) {
	c, reader, dlq, ctx := newTestConsumer(t, msgAt(0, "a"), msgAt(1, "b"))
	dlq.err = errors.New("dlq unavailable")
	var handled []string

	err := c.Consume(ctx, func(ctx context.Context, key, value []byte) error {
		handled = append(handled, string(value))
		return ErrUnprocessable
	})

	assert.ErrorIs(t, err, ErrNotDeadLettered)
	assert.Equal(t, []string{"a"}, handled, "the partition does not move past the failed message")
	assert.Empty(t, reader.committed)
}

func TestConsumer_NoDLQLeavesOffset(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reader := &fakeReader{messages: []kafka.Message{msgAt(0, "a")}, cancel: cancel}
	c := newConsumer(reader, nil, RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond}, "t", zap.NewNop())
	calls := 0

	err := c.Consume(ctx, func(ctx context.Context, key, value []byte) error {
		calls++
		return errors.New("ledger write failed")
	})

	assert.ErrorIs(t, err, ErrNotDeadLettered)
	assert.Equal(t, 2, calls)
	assert.Empty(t, reader.committed)
}

func TestConsumer_CancelledMidRetryDoesNotCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{messages: []kafka.Message{msgAt(0, "a")}, cancel: cancel}
	retry := RetryPolicy{MaxAttempts: 10, InitialBackoff: time.Hour}
	c := newConsumer(reader, &fakeWriter{}, retry, "t", zap.NewNop())

	err := c.Consume(ctx, func(ctx context.Context, key, value []byte) error {
		cancel()
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reader.committed)
}

func TestConsumer_Close(t *testing.T) {
	dlq := &fakeWriter{}
	c := newConsumer(&fakeReader{}, dlq, RetryPolicy{}, "t", zap.NewNop())

	require.NoError(t, c.Close())
	assert.True(t, dlq.closed)
}
