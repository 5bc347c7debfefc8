package remote

import (
	"context"
	"fmt"
)

// DispatchClient implements DispatchStore against the backend.
type DispatchClient struct {
	base *Client
}

func (c *DispatchClient) GetAll(ctx context.Context, filter DispatchFilter) (DispatchPage, error) {
	var page DispatchPage
	req := c.base.http.R().SetContext(ctx).SetResult(&page)
	if filter.TechnicianID != "" {
		req.SetQueryParam("technicianId", filter.TechnicianID)
	}
	if filter.DateFrom != "" {
		req.SetQueryParam("dateFrom", filter.DateFrom)
	}
	if filter.DateTo != "" {
		req.SetQueryParam("dateTo", filter.DateTo)
	}
	if filter.Status != "" {
		req.SetQueryParam("status", filter.Status)
	}
	if filter.Page > 0 {
		req.SetQueryParam("page", fmt.Sprint(filter.Page))
	}
	if filter.PageSize > 0 {
		req.SetQueryParam("pageSize", fmt.Sprint(filter.PageSize))
	}
	resp, err := req.Get("/api/dispatches")
	if err := c.base.checkResponse(resp, err, "list dispatches"); err != nil {
		return DispatchPage{}, err
	}
	return page, nil
}

func (c *DispatchClient) GetByID(ctx context.Context, id string) (RemoteDispatch, error) {
	var out RemoteDispatch
	resp, err := c.base.http.R().SetContext(ctx).SetResult(&out).
		SetPathParam("id", id).
		Get("/api/dispatches/{id}")
	if err := c.base.checkResponse(resp, err, "get dispatch"); err != nil {
		return RemoteDispatch{}, err
	}
	return out, nil
}

func (c *DispatchClient) CreateFromJob(ctx context.Context, jobID string, req CreateDispatchRequest) (RemoteDispatch, error) {
	var out RemoteDispatch
	resp, err := c.base.http.R().SetContext(ctx).
		SetPathParam("jobId", jobID).
		SetBody(req).
		SetResult(&out).
		Post("/api/jobs/{jobId}/dispatches")
	if err := c.base.checkResponse(resp, err, "create dispatch from job"); err != nil {
		return RemoteDispatch{}, err
	}
	c.base.logger.Info().Str("dispatch_id", out.ID).Str("job_id", jobID).Msg("dispatch created")
	return out, nil
}

func (c *DispatchClient) CreateFromInstallation(ctx context.Context, req CreateInstallationDispatchRequest) (RemoteDispatch, error) {
	var out RemoteDispatch
	resp, err := c.base.http.R().SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/api/dispatches/installation")
	if err := c.base.checkResponse(resp, err, "create installation dispatch"); err != nil {
		return RemoteDispatch{}, err
	}
	c.base.logger.Info().Str("dispatch_id", out.ID).Str("installation_id", req.InstallationID).Msg("installation dispatch created")
	return out, nil
}

func (c *DispatchClient) Update(ctx context.Context, id string, patch DispatchPatch) error {
	resp, err := c.base.http.R().SetContext(ctx).
		SetPathParam("id", id).
		SetBody(patch).
		Patch("/api/dispatches/{id}")
	return c.base.checkResponse(resp, err, "update dispatch")
}

func (c *DispatchClient) UpdateStatus(ctx context.Context, id, status, substatus string) error {
	body := map[string]string{"status": status}
	if substatus != "" {
		body["substatus"] = substatus
	}
	resp, err := c.base.http.R().SetContext(ctx).
		SetPathParam("id", id).
		SetBody(body).
		Put("/api/dispatches/{id}/status")
	return c.base.checkResponse(resp, err, "update dispatch status")
}

func (c *DispatchClient) Delete(ctx context.Context, id string) error {
	resp, err := c.base.http.R().SetContext(ctx).
		SetPathParam("id", id).
		Delete("/api/dispatches/{id}")
	return c.base.checkResponse(resp, err, "delete dispatch")
}

func (c *DispatchClient) AddNote(ctx context.Context, id, text, kind string) error {
	resp, err := c.base.http.R().SetContext(ctx).
		SetPathParam("id", id).
		SetBody(map[string]string{"text": text, "kind": kind}).
		Post("/api/dispatches/{id}/notes")
	return c.base.checkResponse(resp, err, "add dispatch note")
}
