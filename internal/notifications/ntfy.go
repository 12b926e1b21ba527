package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"voicenotes/internal/config"
)

const userAgent = "voicenotes/0.1"

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetHeader("User-Agent", userAgent).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && (r.StatusCode() == 429 || r.StatusCode() >= 500)
		})

	return &ntfyService{
		endpoint: topic,
		client:   client,
		cfg:      cfg.Notifications,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *resty.Client
	cfg      config.Notifications
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventTaskCompleted:
		if !n.cfg.TaskCompleted {
			return message{}, false
		}
		body := fmt.Sprintf("Transcribed %s", payload.str("transcription_id"))
		if preview := strings.TrimSpace(payload.str("preview")); preview != "" {
			body += "\n" + preview
		}
		return message{
			title: "Voice Notes - Transcribed",
			body:  body,
			tags:  []string{"voicenotes", "transcribe", "completed"},
		}, true
	case EventTaskFailed:
		if !n.cfg.TaskFailed {
			return message{}, false
		}
		body := fmt.Sprintf("Transcription failed for %s", payload.str("transcription_id"))
		if errText := strings.TrimSpace(payload.str("error")); errText != "" {
			body += ": " + errText
		}
		return message{
			title:    "Voice Notes - Failed",
			body:     body,
			tags:     []string{"voicenotes", "error", "alert"},
			priority: "high",
		}, true
	case EventSyncComplete:
		if !n.cfg.SyncComplete {
			return message{}, false
		}
		newCount, missing, errCount := payload.num("new"), payload.num("missing"), payload.num("errors")
		if newCount == 0 && missing == 0 && errCount == 0 {
			return message{}, false
		}
		body := fmt.Sprintf("Sync found %d new and %d missing notes", newCount, missing)
		if errCount > 0 {
			body += fmt.Sprintf(" (%d errors)", errCount)
		}
		return message{
			title: "Voice Notes - Sync",
			body:  body,
			tags:  []string{"voicenotes", "sync"},
		}, true
	case EventImportProcessed:
		if !n.cfg.Imports {
			return message{}, false
		}
		return message{
			title: "Voice Notes - Imported",
			body:  fmt.Sprintf("Imported %s", payload.str("original_name")),
			tags:  []string{"voicenotes", "import"},
		}, true
	case EventTest:
		return message{
			title:    "Voice Notes - Test",
			body:     "Notification system test",
			tags:     []string{"voicenotes", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain; charset=utf-8").
		SetBody(msg.body)
	if msg.title != "" {
		req.SetHeader("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.SetHeader("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.SetHeader("Priority", msg.priority)
	}

	resp, err := req.Post(n.endpoint)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	if resp.IsError() {
		body := strings.TrimSpace(resp.String())
		if len(body) > 2048 {
			body = body[:2048]
		}
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode(), body)
	}
	return nil
}
