package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

func (c *Client) listURL(listID string) string {
	return fmt.Sprintf("%s/lists/%s", c.baseURL, url.PathEscape(listID))
}

// ListTaskLists returns all task lists for the signed-in user, following
// pagination.
func (c *Client) ListTaskLists(ctx context.Context) ([]TaskList, error) {
	var lists []TaskList
	err := c.listPages(ctx, "list_task_lists", c.baseURL+"/lists", func(items []json.RawMessage) error {
		for _, raw := range items {
			var tl todoTaskList
			if err := json.Unmarshal(raw, &tl); err != nil {
				return fmt.Errorf("failed to decode task list: %w", err)
			}
			lists = append(lists, toTaskList(&tl))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list task lists: %w", err)
	}
	return lists, nil
}

// GetTaskList retrieves a single task list by ID.
func (c *Client) GetTaskList(ctx context.Context, listID string) (*TaskList, error) {
	var tl todoTaskList
	if err := c.getJSON(ctx, "get_task_list", c.listURL(listID), &tl); err != nil {
		return nil, fmt.Errorf("failed to get task list: %w", err)
	}
	result := toTaskList(&tl)
	return &result, nil
}

// CreateTaskList creates a new task list with the given display name.
func (c *Client) CreateTaskList(ctx context.Context, displayName string) (*TaskList, error) {
	var created todoTaskList
	body := &todoTaskList{DisplayName: displayName}
	if err := c.writeJSON(ctx, "create_task_list", http.MethodPost, c.baseURL+"/lists", body, &created); err != nil {
		return nil, fmt.Errorf("failed to create task list: %w", err)
	}
	result := toTaskList(&created)
	return &result, nil
}

// UpdateTaskList renames a task list.
func (c *Client) UpdateTaskList(ctx context.Context, listID, displayName string) (*TaskList, error) {
	var updated todoTaskList
	body := &todoTaskList{DisplayName: displayName}
	if err := c.writeJSON(ctx, "update_task_list", http.MethodPatch, c.listURL(listID), body, &updated); err != nil {
		return nil, fmt.Errorf("failed to update task list: %w", err)
	}
	result := toTaskList(&updated)
	return &result, nil
}

// DeleteTaskList deletes a task list and everything in it.
func (c *Client) DeleteTaskList(ctx context.Context, listID string) error {
	if err := c.delete(ctx, "delete_task_list", c.listURL(listID)); err != nil {
		return fmt.Errorf("failed to delete task list: %w", err)
	}
	return nil
}
