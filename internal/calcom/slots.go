package calcom

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"
)

type slotsResponse struct {
	Slots map[string][]struct {
		Time string `json:"time"`
	} `json:"slots"`
}

// ListAvailability returns the open slots of an event type in [From, To].
func (c *Client) ListAvailability(ctx context.Context, q AvailabilityQuery) ([]Slot, error) {
	const op = "list_availability"

	if q.EventTypeID <= 0 {
		return nil, invalid(op, "event_type", "event type is required")
	}
	if q.From.IsZero() || q.To.IsZero() {
		return nil, invalid(op, "date_range", "date range is required")
	}
	if q.To.Before(q.From) {
		return nil, invalid(op, "date_range", "range start must not be after range end")
	}
	loc, err := c.resolveLocation(op, q.Timezone)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("eventTypeId", strconv.Itoa(q.EventTypeID))
	query.Set("startTime", q.From.In(loc).Format(time.RFC3339))
	query.Set("endTime", q.To.In(loc).Format(time.RFC3339))
	query.Set("timeZone", loc.String())

	var resp slotsResponse
	if err := c.do(ctx, op, http.MethodGet, "slots", query, nil, &resp); err != nil {
		return nil, err
	}

	length := time.Duration(q.Length) * time.Minute
	var out []Slot
	for _, day := range resp.Slots {
		for _, s := range day {
			start, err := time.Parse(time.RFC3339, s.Time)
			if err != nil {
				continue
			}
			slot := Slot{Start: start.In(loc)}
			if length > 0 {
				slot.End = slot.Start.Add(length)
			}
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
