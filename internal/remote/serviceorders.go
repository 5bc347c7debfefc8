package remote

import (
	"context"
	"fmt"
)

// ServiceOrderClient implements ServiceOrderStore against the backend.
type ServiceOrderClient struct {
	base *Client
}

func (c *ServiceOrderClient) GetAll(ctx context.Context, filter ServiceOrderFilter) (ServiceOrderPage, error) {
	var page ServiceOrderPage
	req := c.base.http.R().SetContext(ctx).SetResult(&page)
	if filter.Status != "" {
		req.SetQueryParam("status", filter.Status)
	}
	if filter.Page > 0 {
		req.SetQueryParam("page", fmt.Sprint(filter.Page))
	}
	if filter.PageSize > 0 {
		req.SetQueryParam("pageSize", fmt.Sprint(filter.PageSize))
	}
	resp, err := req.Get("/api/service-orders")
	if err := c.base.checkResponse(resp, err, "list service orders"); err != nil {
		return ServiceOrderPage{}, err
	}
	return page, nil
}

func (c *ServiceOrderClient) GetByID(ctx context.Context, id string, includeJobs bool) (RemoteServiceOrder, error) {
	var out RemoteServiceOrder
	req := c.base.http.R().SetContext(ctx).SetResult(&out).SetPathParam("id", id)
	if includeJobs {
		req.SetQueryParam("includeJobs", "true")
	}
	resp, err := req.Get("/api/service-orders/{id}")
	if err := c.base.checkResponse(resp, err, "get service order"); err != nil {
		return RemoteServiceOrder{}, err
	}
	return out, nil
}

func (c *ServiceOrderClient) AddNote(ctx context.Context, id string, note OrderNote) error {
	resp, err := c.base.http.R().SetContext(ctx).
		SetPathParam("id", id).
		SetBody(note).
		Post("/api/service-orders/{id}/notes")
	return c.base.checkResponse(resp, err, "add service order note")
}
