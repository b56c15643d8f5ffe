package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	commitErr []error
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.commitErr = append(r.commitErr, ctx.Err())
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestSendMessageEncodesJSONWithKey(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w)

	require.NoError(t, p.SendMessage(context.Background(), "decision-events", "app-1", map[string]string{"decision": "APPROVED"}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "decision-events", w.msgs[0].Topic)
	assert.Equal(t, "app-1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"decision":"APPROVED"}`, string(w.msgs[0].Value))
}

func TestSendMessagePropagatesWriterError(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{err: errors.New("leader not available")})
	assert.Error(t, p.SendMessage(context.Background(), "decision-events", "k", "v"))
}

func TestConsumerCommitsEvenWhenHandlerFails(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		msgs:   []kafka.Message{{Topic: "scoring-events", Offset: 1}, {Topic: "scoring-events", Offset: 2}},
		cancel: cancel,
	}
	c := NewConsumerWithReader(r, "scoring-events")

	var handled []int64
	err := c.Run(ctx, func(_ context.Context, m kafka.Message) error {
		handled = append(handled, m.Offset)
		if m.Offset == 1 {
			return errors.New("bad payload")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, handled)
	assert.Equal(t, []int64{1, 2}, r.committed)
}

func TestConsumerCommitsInFlightMessageOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeReader{
		msgs:   []kafka.Message{{Topic: "scoring-events", Offset: 5}, {Topic: "scoring-events", Offset: 6}},
		cancel: cancel,
	}
	c := NewConsumerWithReader(r, "scoring-events")

	var handled []int64
	err := c.Run(ctx, func(_ context.Context, m kafka.Message) error {
		handled = append(handled, m.Offset)
		cancel()
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{5}, handled)
	assert.Equal(t, []int64{5}, r.committed)
	require.Len(t, r.commitErr, 1)
	assert.NoError(t, r.commitErr[0])
}

func TestDeadLetterQueueWrapsOriginal(t *testing.T) {
	w := &fakeWriter{}
	dlq := NewDeadLetterQueue(NewProducerWithWriter(w), "scoring-events.dlq")

	orig := kafka.Message{Topic: "scoring-events", Partition: 2, Offset: 42, Key: []byte("k1"), Value: []byte("{oops")}
	require.NoError(t, dlq.Send(context.Background(), orig, "invalid payload", errors.New("unexpected EOF")))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "scoring-events.dlq", w.msgs[0].Topic)

	var dl DeadLetter
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &dl))
	assert.Equal(t, "scoring-events", dl.OriginalTopic)
	assert.Equal(t, int64(42), dl.OriginalOffset)
	assert.Equal(t, "{oops", dl.OriginalValue)
	assert.Equal(t, "invalid payload", dl.FailureReason)
	assert.Equal(t, "unexpected EOF", dl.FailureError)
}
