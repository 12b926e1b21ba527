package logs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"voicenotes/internal/api"
)

var ErrAPIUnavailable = errors.New("event API unavailable")

// EventClient reads daemon event history from the HTTP API.
type EventClient struct {
	client *resty.Client
}

// EventPage is one batch of events plus the cursor for the next request.
type EventPage struct {
	Events []api.Event `json:"events"`
	Next   int64       `json:"next"`
}

// NewEventClient returns nil when bind is empty so callers can fall back to IPC.
func NewEventClient(bind, token string) (*EventClient, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	client := resty.New().
		SetBaseURL(base.String()).
		SetHeader("Accept", "application/json").
		SetTimeout(10 * time.Second)
	if token = strings.TrimSpace(token); token != "" {
		client.SetAuthToken(token)
	}
	return &EventClient{client: client}, nil
}

// Fetch returns events with a sequence number greater than since.
func (c *EventClient) Fetch(ctx context.Context, since int64) (EventPage, error) {
	if c == nil {
		return EventPage{}, ErrAPIUnavailable
	}
	var page EventPage
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("since", strconv.FormatInt(since, 10)).
		SetResult(&page).
		Get("/api/events")
	if err != nil {
		return EventPage{}, err
	}
	if resp.IsError() {
		return EventPage{}, fmt.Errorf("api events returned status %d", resp.StatusCode())
	}
	if page.Next < since {
		page.Next = since
	}
	return page, nil
}

func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
