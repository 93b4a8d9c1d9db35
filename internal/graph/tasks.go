package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

func (c *Client) tasksURL(listID string) string {
	return c.listURL(listID) + "/tasks"
}

func (c *Client) taskURL(listID, taskID string) string {
	return fmt.Sprintf("%s/%s", c.tasksURL(listID), url.PathEscape(taskID))
}

// ListTasks returns tasks in a list, following pagination. When
// includeCompleted is false, completed tasks are filtered server-side.
func (c *Client) ListTasks(ctx context.Context, listID string, includeCompleted bool) ([]Task, error) {
	u := c.tasksURL(listID)
	if !includeCompleted {
		u += "?$filter=" + url.QueryEscape("status ne 'completed'")
	}

	var tasks []Task
	err := c.listPages(ctx, "list_tasks", u, func(items []json.RawMessage) error {
		for _, raw := range items {
			var t todoTask
			if err := json.Unmarshal(raw, &t); err != nil {
				return fmt.Errorf("failed to decode task: %w", err)
			}
			tasks = append(tasks, toTask(&t))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// GetTask retrieves a single task by ID.
func (c *Client) GetTask(ctx context.Context, listID, taskID string) (*Task, error) {
	var t todoTask
	if err := c.getJSON(ctx, "get_task", c.taskURL(listID, taskID), &t); err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	result := toTask(&t)
	return &result, nil
}

// CreateTask creates a new task in the given list.
func (c *Client) CreateTask(ctx context.Context, listID string, input TaskInput) (*Task, error) {
	var created todoTask
	if err := c.writeJSON(ctx, "create_task", http.MethodPost, c.tasksURL(listID), fromTaskInput(input), &created); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	result := toTask(&created)
	return &result, nil
}

// UpdateTask applies a partial update to a task. Only the fields set in
// input are sent, so untouched fields keep their server-side values.
func (c *Client) UpdateTask(ctx context.Context, listID, taskID string, input TaskInput) (*Task, error) {
	var updated todoTask
	if err := c.writeJSON(ctx, "update_task", http.MethodPatch, c.taskURL(listID, taskID), fromTaskInput(input), &updated); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	result := toTask(&updated)
	return &result, nil
}

// CompleteTask marks a task completed.
func (c *Client) CompleteTask(ctx context.Context, listID, taskID string) (*Task, error) {
	var updated todoTask
	body := &todoTask{Status: "completed"}
	if err := c.writeJSON(ctx, "complete_task", http.MethodPatch, c.taskURL(listID, taskID), body, &updated); err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}
	result := toTask(&updated)
	return &result, nil
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, listID, taskID string) error {
	if err := c.delete(ctx, "delete_task", c.taskURL(listID, taskID)); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}
