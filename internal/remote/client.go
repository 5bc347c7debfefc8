package remote

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Client is the shared HTTP transport for the field-service backend.
// Typed sub-clients built from it implement the collaborator
// interfaces.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		c.SetHeader("Authorization", "Bearer "+apiKey)
	}
	return &Client{http: c, logger: logger}
}

func (c *Client) Dispatches() *DispatchClient {
	return &DispatchClient{base: c}
}

func (c *Client) ServiceOrders() *ServiceOrderClient {
	return &ServiceOrderClient{base: c}
}

func (c *Client) Users() *UserClient {
	return &UserClient{base: c}
}

func (c *Client) Installations() *InstallationClient {
	return &InstallationClient{base: c}
}

func (c *Client) Notifications() *NotificationClient {
	return &NotificationClient{base: c}
}

func (c *Client) checkResponse(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: backend returned %s", op, resp.Status())
	}
	return nil
}
