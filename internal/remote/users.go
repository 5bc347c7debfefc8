package remote

import "context"

// UserClient implements UserDirectory against the backend user service.
type UserClient struct {
	base *Client
}

func (c *UserClient) GetAll(ctx context.Context) ([]RemoteUser, error) {
	var out []RemoteUser
	resp, err := c.base.http.R().SetContext(ctx).SetResult(&out).Get("/api/users")
	if err := c.base.checkResponse(resp, err, "list users"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *UserClient) GetByID(ctx context.Context, id string) (RemoteUser, error) {
	var out RemoteUser
	resp, err := c.base.http.R().SetContext(ctx).SetResult(&out).
		SetPathParam("id", id).
		Get("/api/users/{id}")
	if err := c.base.checkResponse(resp, err, "get user"); err != nil {
		return RemoteUser{}, err
	}
	return out, nil
}
