package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_Forward(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "checkout.events", nil)

	require.NoError(t, p.Forward(context.Background(), "order_placed", "order-1", []byte(`{"a":1}`)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"a":1}`, string(w.msgs[0].Value))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, "order_placed", string(w.msgs[0].Headers[0].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_ForwardError(t *testing.T) {
	p := newProducer(&fakeWriter{err: errors.New("leader not available")}, "t", nil)
	assert.Error(t, p.Forward(context.Background(), "order_placed", "k", nil))
}

func TestNewProducer_Validation(t *testing.T) {
	_, err := NewProducer(nil, "t", nil)
	assert.Error(t, err)
	_, err = NewProducer([]string{"localhost:9092"}, "", nil)
	assert.Error(t, err)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092"))
	assert.Nil(t, ParseBrokers(""))
}
