package notify

import (
	"context"

	apphttp "certificate-workers/internal/common/http"
)

// WebhookSender POSTs the message as JSON to a notification endpoint.
type WebhookSender struct {
	client *apphttp.Client
	url    string
}

func NewWebhookSender(client *apphttp.Client, url string) *WebhookSender {
	return &WebhookSender{client: client, url: url}
}

func (s *WebhookSender) Channel() string { return "webhook" }

func (s *WebhookSender) Send(ctx context.Context, msg Message) error {
	return s.client.PostJSON(ctx, s.url, msg)
}
