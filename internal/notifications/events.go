package notifications

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Event identifies a workflow milestone.
type Event string

const (
	EventTaskClaimed     Event = "task_claimed"
	EventTaskCompleted   Event = "task_completed"
	EventTaskFailed      Event = "task_failed"
	EventTaskRetrying    Event = "task_retrying"
	EventSyncComplete    Event = "sync_complete"
	EventImportProcessed Event = "import_processed"
	EventTest            Event = "test"
)

// Payload carries event-specific values. Values should be JSON encodable.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewMulti fans an event out to every non-nil service. All services receive
// the event even when an earlier one fails.
func NewMulti(services ...Service) Service {
	filtered := make([]Service, 0, len(services))
	for _, svc := range services {
		if svc == nil {
			continue
		}
		if _, ok := svc.(noopService); ok {
			continue
		}
		filtered = append(filtered, svc)
	}
	switch len(filtered) {
	case 0:
		return noopService{}
	case 1:
		return filtered[0]
	}
	return multiService(filtered)
}

type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop returns a Service that discards everything.
func Noop() Service { return noopService{} }

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

func (p Payload) str(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func (p Payload) num(key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
