package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/iliyamo/fitbook/internal/model"
)

func sampleEvent() model.Event {
	return model.Event{
		ID:          "ev-1",
		Type:        model.EventPaymentReminder,
		BookingID:   "b1",
		RecipientID: "client-1",
		Payload:     map[string]any{"final": true},
		OccurredAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestAsyncRetriesUntilDelivered(t *testing.T) {
	var calls int32
	next := Func(func(context.Context, model.Event) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("broker down")
		}
		return nil
	})
	a := NewAsync(next, AsyncOptions{Workers: 1, Attempts: 5, Backoff: time.Millisecond})
	require.NoError(t, a.Notify(context.Background(), sampleEvent()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.Close(ctx))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.ErrorIs(t, a.Notify(context.Background(), sampleEvent()), ErrClosed)
}

func TestAsyncGivesUp(t *testing.T) {
	var calls int32
	next := Func(func(context.Context, model.Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("still down")
	})
	a := NewAsync(next, AsyncOptions{Workers: 1, Attempts: 2, Backoff: time.Millisecond})
	require.NoError(t, a.Notify(context.Background(), sampleEvent()))
	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAsyncQueueFull(t *testing.T) {
	block := make(chan struct{})
	next := Func(func(context.Context, model.Event) error {
		<-block
		return nil
	})
	a := NewAsync(next, AsyncOptions{Workers: 1, Buffer: 1})
	// The first event is taken by the worker, the second fills the buffer.
	require.NoError(t, a.Notify(context.Background(), sampleEvent()))
	assert.Eventually(t, func() bool { return len(a.queue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, a.Notify(context.Background(), sampleEvent()))
	assert.ErrorIs(t, a.Notify(context.Background(), sampleEvent()), ErrQueueFull)
	close(block)
	require.NoError(t, a.Close(context.Background()))
}

func TestMultiJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("boom")
	m := Multi{rec, Func(func(context.Context, model.Event) error { return boom }), Log{}}
	err := m.Notify(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []model.EventType{model.EventPaymentReminder}, rec.Types())
}

type fakeSNS struct {
	in *sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = in
	return &sns.PublishOutput{}, nil
}

func TestSNSPublisherMessage(t *testing.T) {
	fake := &fakeSNS{}
	p := &SNSPublisher{client: fake, topicArn: "arn:aws:sns:eu-west-1:123:bookings"}
	require.NoError(t, p.Notify(context.Background(), sampleEvent()))

	require.NotNil(t, fake.in)
	assert.Equal(t, "arn:aws:sns:eu-west-1:123:bookings", *fake.in.TopicArn)
	assert.Equal(t, "payment.reminder", *fake.in.MessageAttributes["event_type"].StringValue)
	assert.Equal(t, "client-1", *fake.in.MessageAttributes["recipient_id"].StringValue)

	msg := *fake.in.Message
	assert.True(t, json.Valid([]byte(msg)))
	assert.Equal(t, "b1", gjson.Get(msg, "booking_id").String())
	assert.True(t, gjson.Get(msg, "payload.final").Bool())
}
