package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/honeynil/TicketPurchaseService/internal/models"
	pkgerrors "github.com/honeynil/TicketPurchaseService/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *MockWriter) Close() error {
	return m.Called().Error(0)
}

func notification() models.PaymentNotification {
	return models.PaymentNotification{
		PurchaseID:       12,
		UserID:           "U1",
		EventID:          3,
		Quantity:         2,
		Total:            models.MustMoney("50.00"),
		PaymentMethod:    "card",
		PaymentTimestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestProducer_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		w := new(MockWriter)
		w.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 || string(msgs[0].Key) != "12" {
				return false
			}
			var n models.PaymentNotification
			return json.Unmarshal(msgs[0].Value, &n) == nil && n.PurchaseID == 12 && n.PaymentMethod == "card"
		})).Return(nil)

		p := &Producer{writer: w, topic: "purchase_notifications"}
		assert.NoError(t, p.Publish(ctx, notification()))
		w.AssertExpectations(t)
	})

	t.Run("WriteError", func(t *testing.T) {
		w := new(MockWriter)
		w.On("WriteMessages", ctx, mock.Anything).Return(errors.New("leader not available"))

		p := &Producer{writer: w, topic: "purchase_notifications"}
		err := p.Publish(ctx, notification())
		assert.ErrorIs(t, err, pkgerrors.ErrPublishFailed)
	})
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_Consume(t *testing.T) {
	value, err := json.Marshal(notification())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 1, Value: value},
			{Offset: 2, Value: []byte("garbage")},
			{Offset: 3, Value: value},
		},
	}
	c := &Consumer{reader: reader, topic: "purchase_notifications"}

	var handled []int64
	err = c.Consume(ctx, func(ctx context.Context, n models.PaymentNotification) error {
		handled = append(handled, n.PurchaseID)
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{12, 12}, handled)
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
}

type failingReader struct {
	errs    []error
	fetches int
}

func (r *failingReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.fetches++
	if len(r.errs) == 0 {
		return kafka.Message{}, errors.New("broker unavailable")
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return kafka.Message{}, err
}

func (r *failingReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error { return nil }

func (r *failingReader) Close() error { return nil }

func TestConsumer_FetchFailures(t *testing.T) {
	noop := func(ctx context.Context, n models.PaymentNotification) error { return nil }

	t.Run("WaitsBetweenRetriesAndStopsOnClose", func(t *testing.T) {
		reader := &failingReader{errs: []error{
			errors.New("broker unavailable"),
			errors.New("broker unavailable"),
			io.EOF,
		}}
		c := &Consumer{reader: reader, topic: "purchase_notifications", retryDelay: 20 * time.Millisecond}

		start := time.Now()
		err := c.Consume(context.Background(), noop)

		assert.NoError(t, err)
		assert.Equal(t, 3, reader.fetches)
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("CancelledWhileWaiting", func(t *testing.T) {
		reader := &failingReader{}
		c := &Consumer{reader: reader, topic: "purchase_notifications", retryDelay: time.Hour}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := c.Consume(ctx, noop)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, reader.fetches)
	})
}
