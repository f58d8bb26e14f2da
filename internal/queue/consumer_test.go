package queue

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/fitbook/internal/model"
)

func TestHandleWritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsumer("amqp://unused", &buf)
	body, err := json.Marshal(model.Event{
		ID:          "ev-1",
		Type:        model.EventPaymentRequired,
		BookingID:   "b-1",
		RecipientID: "client-1",
		Payload:     map[string]any{"status": "pending", "amount": 2500, "venue_code": "GYM-1234"},
		OccurredAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, c.handle(body))
	assert.Equal(t,
		"[2026-03-01T09:00:00Z] payment.required | booking_id=b-1 | recipient_id=client-1 | amount=2500 | status=\"pending\"\n",
		buf.String())
	assert.NotContains(t, buf.String(), "GYM-1234")
}

func TestHandleRejectsGarbage(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsumer("amqp://unused", &buf)
	assert.Error(t, c.handle([]byte("{")))
	assert.Error(t, c.handle([]byte(`{"type":"booking.created"}`)))
	assert.Zero(t, buf.Len())
}

func TestFormatLineNestedPayload(t *testing.T) {
	line := formatLine(model.Event{
		Type:      model.EventBookingProposed,
		BookingID: "b-2",
		Payload:   map[string]any{"changes": map[string]any{"time": "11:30"}},
	})
	assert.Contains(t, line, `changes={"time":"11:30"}`)
}

func TestNewEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "booking.log")
	l := NewEventLog(path)
	c := NewConsumer("amqp://unused", l)
	require.NoError(t, c.handle([]byte(`{"type":"booking.created","booking_id":"b-3","occurred_at":"2026-03-01T09:00:00Z"}`)))
	require.NoError(t, l.Close())
	assert.FileExists(t, path)
}
