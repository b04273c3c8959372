package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/qx/taskmate_robot/api/internal/model"
)

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, oid string) (*model.Task, error) {
	var task model.Task
	if err := c.do(ctx, http.MethodGet, "/task/"+oid, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListUserTasks returns the tasks the user is assigned to.
func (c *Client) ListUserTasks(ctx context.Context, tid int64) ([]model.Task, error) {
	var tasks []model.Task
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/task/user/%d", tid), nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListGroupTasks returns the group's tasks.
func (c *Client) ListGroupTasks(ctx context.Context, groupOid string) ([]model.Task, error) {
	var tasks []model.Task
	if err := c.do(ctx, http.MethodGet, "/task/group/"+groupOid, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListActiveTasks returns every open task, the notifier's scan set.
func (c *Client) ListActiveTasks(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := c.do(ctx, http.MethodGet, "/task/active", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask persists a new task and returns its assigned oid.
func (c *Client) CreateTask(ctx context.Context, task *model.Task) (string, error) {
	body, err := requestBody(task, "task_oid")
	if err != nil {
		return "", err
	}
	var resp struct {
		TaskOid string `json:"task_oid"`
	}
	if err := c.do(ctx, http.MethodPost, "/task", body, &resp); err != nil {
		return "", err
	}
	return resp.TaskOid, nil
}

// UpdateTask overwrites the task document. The write is idempotent; the
// notifier relies on that when persisting reminder flags.
func (c *Client) UpdateTask(ctx context.Context, task *model.Task) error {
	body, err := requestBody(task, "task_oid")
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/task/"+task.TaskOid, body, nil)
}

// DeleteTask removes the task document.
func (c *Client) DeleteTask(ctx context.Context, oid string) error {
	return c.do(ctx, http.MethodDelete, "/task/"+oid, nil, nil)
}
