package remote

import (
	"context"

	"github.com/google/uuid"
)

// NotificationClient implements NotificationSink. Callers treat
// delivery as best-effort.
type NotificationClient struct {
	base *Client
}

func (c *NotificationClient) Create(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	resp, err := c.base.http.R().SetContext(ctx).
		SetBody(n).
		Post("/api/notifications")
	return c.base.checkResponse(resp, err, "create notification")
}
