package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

func (c *Client) checklistURL(listID, taskID string) string {
	return c.taskURL(listID, taskID) + "/checklistItems"
}

func (c *Client) checklistItemURL(listID, taskID, itemID string) string {
	return fmt.Sprintf("%s/%s", c.checklistURL(listID, taskID), url.PathEscape(itemID))
}

// ListChecklistItems returns the checklist items of a task.
func (c *Client) ListChecklistItems(ctx context.Context, listID, taskID string) ([]ChecklistItem, error) {
	var items []ChecklistItem
	err := c.listPages(ctx, "list_checklist_items", c.checklistURL(listID, taskID), func(raws []json.RawMessage) error {
		for _, raw := range raws {
			var ci wireChecklistItem
			if err := json.Unmarshal(raw, &ci); err != nil {
				return fmt.Errorf("failed to decode checklist item: %w", err)
			}
			items = append(items, toChecklistItem(&ci))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list checklist items: %w", err)
	}
	return items, nil
}

// CreateChecklistItem adds a checklist item to a task.
func (c *Client) CreateChecklistItem(ctx context.Context, listID, taskID, displayName string) (*ChecklistItem, error) {
	var created wireChecklistItem
	body := &wireChecklistItem{DisplayName: displayName}
	if err := c.writeJSON(ctx, "create_checklist_item", http.MethodPost, c.checklistURL(listID, taskID), body, &created); err != nil {
		return nil, fmt.Errorf("failed to create checklist item: %w", err)
	}
	result := toChecklistItem(&created)
	return &result, nil
}

// UpdateChecklistItem renames and/or checks a checklist item.
func (c *Client) UpdateChecklistItem(ctx context.Context, listID, taskID, itemID, displayName string, isChecked bool) (*ChecklistItem, error) {
	var updated wireChecklistItem
	body := &wireChecklistItem{DisplayName: displayName, IsChecked: isChecked}
	if err := c.writeJSON(ctx, "update_checklist_item", http.MethodPatch, c.checklistItemURL(listID, taskID, itemID), body, &updated); err != nil {
		return nil, fmt.Errorf("failed to update checklist item: %w", err)
	}
	result := toChecklistItem(&updated)
	return &result, nil
}

// DeleteChecklistItem removes a checklist item from a task.
func (c *Client) DeleteChecklistItem(ctx context.Context, listID, taskID, itemID string) error {
	if err := c.delete(ctx, "delete_checklist_item", c.checklistItemURL(listID, taskID, itemID)); err != nil {
		return fmt.Errorf("failed to delete checklist item: %w", err)
	}
	return nil
}
