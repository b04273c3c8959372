package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/qx/taskmate_robot/api/internal/model"
)

// GetUser fetches a user by Telegram id.
func (c *Client) GetUser(ctx context.Context, tid int64) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/user/%d", tid), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByOid fetches a user by store id.
func (c *Client) GetUserByOid(ctx context.Context, oid string) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/user/oid/"+oid, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUserTids returns the Telegram ids of all registered users.
func (c *Client) ListUserTids(ctx context.Context) ([]int64, error) {
	var resp struct {
		UserTids []int64 `json:"user_tids"`
	}
	if err := c.do(ctx, http.MethodGet, "/user/tid_list", nil, &resp); err != nil {
		return nil, err
	}
	return resp.UserTids, nil
}

// CreateUser persists a new user and returns its assigned oid.
func (c *Client) CreateUser(ctx context.Context, user *model.User) (string, error) {
	body, err := requestBody(user, "user_oid")
	if err != nil {
		return "", err
	}
	var resp struct {
		UserOid string `json:"user_oid"`
	}
	if err := c.do(ctx, http.MethodPost, "/user", body, &resp); err != nil {
		return "", err
	}
	return resp.UserOid, nil
}

// UpdateUser overwrites the user record keyed by its Telegram id.
func (c *Client) UpdateUser(ctx context.Context, user *model.User) error {
	body, err := requestBody(user, "user_oid")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/user/%d", user.UserTid), body, nil)
}

// UpdateNotifications sets the user's notification preference.
func (c *Client) UpdateNotifications(ctx context.Context, tid int64, preference string) error {
	body := map[string]string{"notification_settings": preference}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/user/notifications/%d", tid), body, nil)
}

// DeleteUser removes the user record.
func (c *Client) DeleteUser(ctx context.Context, tid int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/user/%d", tid), nil, nil)
}
