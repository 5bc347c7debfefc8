package remote

import "context"

// InstallationClient implements InstallationDirectory.
type InstallationClient struct {
	base *Client
}

func (c *InstallationClient) GetByID(ctx context.Context, id string) (RemoteInstallation, error) {
	var out RemoteInstallation
	resp, err := c.base.http.R().SetContext(ctx).SetResult(&out).
		SetPathParam("id", id).
		Get("/api/installations/{id}")
	if err := c.base.checkResponse(resp, err, "get installation"); err != nil {
		return RemoteInstallation{}, err
	}
	return out, nil
}
