package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/qx/taskmate_robot/api/internal/model"
)

// GetGroup fetches a group with its full membership roster.
func (c *Client) GetGroup(ctx context.Context, oid string) (*model.Group, error) {
	var group model.Group
	if err := c.do(ctx, http.MethodGet, "/group/"+oid, nil, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// CreateGroup persists a new group and returns its assigned oid.
func (c *Client) CreateGroup(ctx context.Context, group *model.Group) (string, error) {
	body, err := requestBody(group, "group_oid")
	if err != nil {
		return "", err
	}
	var resp struct {
		GroupOid string `json:"group_oid"`
	}
	if err := c.do(ctx, http.MethodPost, "/group", body, &resp); err != nil {
		return "", err
	}
	return resp.GroupOid, nil
}

// UpdateGroup overwrites the group document.
func (c *Client) UpdateGroup(ctx context.Context, group *model.Group) error {
	body, err := requestBody(group, "group_oid")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/group/"+group.GroupOid, body, nil)
}

// UpdateMembers replaces the group's membership roster.
func (c *Client) UpdateMembers(ctx context.Context, oid string, members []model.GroupMember) error {
	body := map[string]any{"members": members}
	return c.do(ctx, http.MethodPut, "/group/"+oid+"/members", body, nil)
}

// SetMemberRole changes one member's role.
func (c *Client) SetMemberRole(ctx context.Context, oid string, memberTid int64, role model.Role) error {
	body := map[string]string{"role": string(role)}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/group/%s/member/%d/role", oid, memberTid), body, nil)
}

// AddMember appends one member to the roster.
func (c *Client) AddMember(ctx context.Context, oid string, member *model.GroupMember) error {
	return c.do(ctx, http.MethodPost, "/group/"+oid+"/member", member, nil)
}

// DeleteGroup removes the group document.
func (c *Client) DeleteGroup(ctx context.Context, oid string) error {
	return c.do(ctx, http.MethodDelete, "/group/"+oid, nil, nil)
}

// ListUserGroups returns the groups the user belongs to.
func (c *Client) ListUserGroups(ctx context.Context, tid int64) ([]model.Group, error) {
	var groups []model.Group
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/group/user/%d", tid), nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// GetCreatedGroup returns the group the user created, or ErrNotFound when
// they have not created one.
func (c *Client) GetCreatedGroup(ctx context.Context, tid int64) (*model.Group, error) {
	var group model.Group
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/group/created/%d", tid), nil, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// ListAdmins returns the group's creator and admin rows.
func (c *Client) ListAdmins(ctx context.Context, oid string) ([]model.GroupMember, error) {
	var admins []model.GroupMember
	if err := c.do(ctx, http.MethodGet, "/group/"+oid+"/admins", nil, &admins); err != nil {
		return nil, err
	}
	return admins, nil
}
