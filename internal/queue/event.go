// Package queue contains the background consumer that follows booking
// events on the broker and appends them to a rotating audit log.
package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/fitbook/internal/model"
)

// decodeEvent parses a broker message body into an event.
func decodeEvent(body []byte) (model.Event, error) {
	var ev model.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.BookingID == "" {
		return ev, fmt.Errorf("event without type or booking id")
	}
	return ev, nil
}

// formatLine renders one event as a single log line. Payload keys are
// written in sorted order; the venue code never reaches the log.
func formatLine(ev model.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | booking_id=%s | recipient_id=%s",
		ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.BookingID, ev.RecipientID)

	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		if k == "venue_code" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := ev.Payload[k]
		switch v.(type) {
		case string:
			fmt.Fprintf(&b, " | %s=%q", k, v)
		case map[string]any, []any:
			raw, _ := json.Marshal(v)
			fmt.Fprintf(&b, " | %s=%s", k, raw)
		default:
			fmt.Fprintf(&b, " | %s=%v", k, v)
		}
	}
	b.WriteByte('\n')
	return b.String()
}
