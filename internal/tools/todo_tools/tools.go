// Package todo_tools registers the Microsoft To Do MCP tools. Read tools
// are always available; tools that modify or destroy data are withheld in
// read-only mode.
package todo_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mstodo/mstodo/internal/auth"
	"github.com/mstodo/mstodo/internal/graph"
	"github.com/mstodo/mstodo/internal/server"
	"github.com/mstodo/mstodo/internal/tools/batch"
	"github.com/mstodo/mstodo/internal/tools/common"
)

// toolError maps domain errors to messages an agent can act on. A missing
// credential points at the sign-in command instead of a raw error string.
func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, auth.ErrNotAuthenticated) {
		return mcp.NewToolResultError(
			"Not authenticated with Microsoft. Run 'mstodo auth' in a terminal to sign in, " +
				"or provide MSTODO_ACCESS_TOKEN and MSTODO_REFRESH_TOKEN in the server environment.")
	}
	var capErr *graph.AccountCapabilityError
	if errors.As(err, &capErr) {
		return mcp.NewToolResultError(
			"This account's mailbox is not enabled for the To Do API. " +
				"Personal accounts must have Microsoft To Do provisioned; work accounts need an Exchange Online mailbox.")
	}
	return mcp.NewToolResultError(err.Error())
}

func requiredString(args map[string]interface{}, name string) (string, *mcp.CallToolResult) {
	value, ok := args[name].(string)
	if !ok || value == "" {
		return "", mcp.NewToolResultError(fmt.Sprintf("%s is required", name))
	}
	return value, nil
}

func optionalString(args map[string]interface{}, name string) string {
	value, _ := args[name].(string)
	return value
}

func optionalBool(args map[string]interface{}, name string) bool {
	value, _ := args[name].(bool)
	return value
}

// parseTime accepts RFC 3339 timestamps from tool arguments.
func parseTime(args map[string]interface{}, name string) (time.Time, *mcp.CallToolResult) {
	raw := optionalString(args, name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, mcp.NewToolResultError(fmt.Sprintf("%s must be an RFC 3339 timestamp: %v", name, err))
	}
	return t, nil
}

func jsonResult(v interface{}) *mcp.CallToolResult {
	result, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(result))
}

// RegisterTodoTools registers all To Do tools with the MCP server.
func RegisterTodoTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	registerTaskListTools(s, sc, readOnly)
	registerTaskTools(s, sc, readOnly)
	registerChecklistTools(s, sc, readOnly)
	registerAuthStatusTool(s, sc)
	return nil
}

// registerTaskListTools registers task list management tools
func registerTaskListTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) {
	listTaskListsTool := mcp.NewTool("todo_list_task_lists",
		mcp.WithDescription("List all To Do task lists for the signed-in user"),
	)

	s.AddTool(listTaskListsTool, common.InstrumentedToolHandler("todo_list_task_lists", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			lists, err := sc.GraphClient().ListTaskLists(ctx)
			if err != nil {
				return toolError(err), nil
			}
			return jsonResult(lists), nil
		}))

	createTaskListTool := mcp.NewTool("todo_create_task_list",
		mcp.WithDescription("Create a new To Do task list"),
		mcp.WithString("displayName",
			mcp.Required(),
			mcp.Description("The display name of the new task list"),
		),
	)

	s.AddTool(createTaskListTool, common.InstrumentedToolHandler("todo_create_task_list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			displayName, errResult := requiredString(args, "displayName")
			if errResult != nil {
				return errResult, nil
			}

			list, err := sc.GraphClient().CreateTaskList(ctx, displayName)
			if err != nil {
				return toolError(err), nil
			}
			return jsonResult(list), nil
		}))

	if readOnly {
		return
	}

	updateTaskListTool := mcp.NewTool("todo_update_task_list",
		mcp.WithDescription("Rename a To Do task list"),
		mcp.WithString("taskListId",
			mcp.Required(),
			mcp.Description("The ID of the task list to rename"),
		),
		mcp.WithString("displayName",
			mcp.Required(),
			mcp.Description("The new display name"),
		),
	)

	s.AddTool(updateTaskListTool, common.InstrumentedToolHandler("todo_update_task_list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			taskListID, errResult := requiredString(args, "taskListId")
			if errResult != nil {
				return errResult, nil
			}
			displayName, errResult := requiredString(args, "displayName")
			if errResult != nil {
				return errResult, nil
			}

			list, err := sc.GraphClient().UpdateTaskList(ctx, taskListID, displayName)
			if err != nil {
				return toolError(err), nil
			}
			return jsonResult(list), nil
		}))

	deleteTaskListTool := mcp.NewTool("todo_delete_task_list",
		mcp.WithDescription("Delete a To Do task list and all tasks in it"),
		mcp.WithString("taskListId",
			mcp.Required(),
			mcp.Description("The ID of the task list to delete"),
		),
	)

	s.AddTool(deleteTaskListTool, common.InstrumentedToolHandler("todo_delete_task_list", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			taskListID, errResult := requiredString(args, "taskListId")
			if errResult != nil {
				return errResult, nil
			}

			if err := sc.GraphClient().DeleteTaskList(ctx, taskListID); err != nil {
				return toolError(err), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Task list %s deleted", taskListID)), nil
		}))
}

// registerTaskTools registers task management tools
func registerTaskTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) {
	listTasksTool := mcp.NewTool("todo_list_tasks",
		mcp.WithDescription("List tasks in a To Do task list"),
		mcp.WithString("taskListId",
			mcp.Required(),
			mcp.Description("The ID of the task list"),
		),
		mcp.WithBoolean("includeCompleted",
			mcp.Description("Include completed tasks (default: false)"),
		),
	)

	s.AddTool(listTasksTool, common.InstrumentedToolHandler("todo_list_tasks", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			taskListID, errResult := requiredString(args, "taskListId")
			if errResult != nil {
				return errResult, nil
			}

			tasks, err := sc.GraphClient().ListTasks(ctx, taskListID, optionalBool(args, "includeCompleted"))
			if err != nil {
				return toolError(err), nil
			}
			return jsonResult(tasks), nil
		}))

	getTaskTool := mcp.NewTool("todo_get_task",
		mcp.WithDescription("Get details of a specific task"),
		mcp.WithString("taskListId",
			mcp.Required(),
			mcp.Description("The ID of the task list"),
		),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("The ID of the task"),
		),
	)

	s.AddTool(getTaskTool, common.InstrumentedToolHandler("todo_get_task", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			taskListID, errResult := requiredString(args, "taskListId")
			if errResult != nil {
				return errResult, nil
			}
			taskID, errResult := requiredString(args, "taskId")
			if errResult != nil {
				return errResult, nil
			}

			task, err := sc.GraphClient().GetTask(ctx, taskListID, taskID)
			if err != nil {
				return toolError(err), nil
			}
			return jsonResult(task), nil
		}))

	createTaskTool := mcp.NewTool("todo_create_task",
		mcp.WithDescription("Create a new task in a To Do task list"),
		mcp.WithString("taskListId",
			mcp.Required(),
			mcp.Description("The ID of the task list"),
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("The task title"),
		),
		mcp.WithString("body",
			mcp.Description("Plain-text notes for the task"),
		),
		mcp.WithString("importance",
			mcp.Description("Task importance: low, normal or high"),
		),
		mcp.WithString("dueDateTime",
			mcp.Description("Due date as an RFC 3339 timestamp"),
		),
		mcp.WithString("reminderDateTime",
			mcp.Description("Reminder as an RFC 3339 timestamp"),
		),
	)

	s.AddTool(createTaskTool, common.InstrumentedToolHandler("todo_create_task", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			taskListID, errResult := requiredString(args, "taskListId")
			if errResult != nil {
				return errResult, nil
			}
			title, errResult := requiredString(args, "title")
			if errResult != nil {
				return errResult, nil
			}
			due, errResult := parseTime(args, "dueDateTime")
			if errResult != nil {
				return errResult, nil
			}
			reminder, errResult := parseTime(args, "reminderDateTime")
			if errResult != nil {
				return errResult, nil
			}

			input := graph.TaskInput{
				Title:      title,
				Body:       optionalString(args, "body"),
				Importance: optionalString(args, "importance"),
				Due:        due,
				Reminder:   reminder,
			}

			task, err := sc.GraphClient().CreateTask(ctx, taskListID, input)
			if err != nil {
				return toolError(err), nil
			}
			return jsonResult(task), nil
		}))

	if readOnly {
		return
	}

	updateTaskTool := mcp.NewTool("todo_update_task",
		mcp.WithDescription("Update fields of an existing task; only provided fields change"),
		mcp.WithString("taskListId",
			mcp.Required(),
			mcp.Description("The ID of the task list"),
		),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("The ID of the task to update"),
		),
		mcp.WithString("title",
			mcp.Description("New task title"),
		),
		mcp.WithString("body",
			mcp.Description("New plain-text notes"),
		),
		mcp.WithString("status",
			mcp.Description("New status: notStarted, inProgress or completed"),
		),
		mcp.WithString("importance",
			mcp.Description("New importance: low, normal or high"),
		),
		mcp.WithString("dueDateTime",
			mcp.Description("New due date as an RFC 3339 timestamp"),
		),
		mcp.WithString("reminderDateTime",
			mcp.Description("New reminder as an RFC 3339 timestamp"),
		),
	)

	s.AddTool(updateTaskTool, common.InstrumentedToolHandler("todo_update_task", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			taskListID, errResult := requiredString(args, "taskListId")
			if errResult != nil {
				return errResult, nil
			}
			taskID, errResult := requiredString(args, "taskId")
			if errResult != nil {
				return errResult, nil
			}
			due, errResult := parseTime(args, "dueDateTime")
			if errResult != nil {
				return errResult, nil
			}
			reminder, errResult := parseTime(args, "reminderDateTime")
			if errResult != nil {
				return errResult, nil
			}

			input := graph.TaskInput{
				Title:      optionalString(args, "title"),
				Body:       optionalString(args, "body"),
				Status:     optionalString(args, "status"),
				Importance: optionalString(args, "importance"),
				Due:        due,
				Reminder:   reminder,
			}

			task, err := sc.GraphClient().UpdateTask(ctx, taskListID, taskID, input)
			if err != nil {
				return toolError(err), nil
			}
			return jsonResult(task), nil
		}))

	completeTaskTool := mcp.NewTool("todo_complete_task",
		mcp.WithDescription("Mark one or more tasks as completed"),
		mcp.WithString("taskListId",
			mcp.Required(),
			mcp.Description("The ID of the task list"),
		),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("A task ID or an array of task IDs to complete"),
		),
	)

	s.AddTool(completeTaskTool, common.InstrumentedToolHandler("todo_complete_task", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			taskListID, errResult := requiredString(args, "taskListId")
			if errResult != nil {
				return errResult, nil
			}
			taskIDs, err := batch.ParseStringOrArray(args["taskId"], "taskId")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			results := batch.ProcessBatch(taskIDs, func(id string) (string, error) {
				task, err := sc.GraphClient().CompleteTask(ctx, taskListID, id)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Task %q completed", task.Title), nil
			})
			return mcp.NewToolResultText(batch.FormatResults(results)), nil
		}))

	deleteTaskTool := mcp.NewTool("todo_delete_task",
		mcp.WithDescription("Delete one or more tasks"),
		mcp.WithString("taskListId",
			mcp.Required(),
			mcp.Description("The ID of the task list"),
		),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("A task ID or an array of task IDs to delete"),
		),
	)

	s.AddTool(deleteTaskTool, common.InstrumentedToolHandler("todo_delete_task", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			taskListID, errResult := requiredString(args, "taskListId")
			if errResult != nil {
				return errResult, nil
			}
			taskIDs, err := batch.ParseStringOrArray(args["taskId"], "taskId")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}

			results := batch.ProcessBatch(taskIDs, func(id string) (string, error) {
				if err := sc.GraphClient().DeleteTask(ctx, taskListID, id); err != nil {
					return "", err
				}
				return "deleted", nil
			})
			return mcp.NewToolResultText(batch.FormatResults(results)), nil
		}))
}

// registerChecklistTools registers checklist item tools
func registerChecklistTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) {
	listChecklistItemsTool := mcp.NewTool("todo_list_checklist_items",
		mcp.WithDescription("List the checklist items (subtasks) of a task"),
		mcp.WithString("taskListId",
			mcp.Required(),
			mcp.Description("The ID of the task list"),
		),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("The ID of the task"),
		),
	)

	s.AddTool(listChecklistItemsTool, common.InstrumentedToolHandler("todo_list_checklist_items", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			taskListID, errResult := requiredString(args, "taskListId")
			if errResult != nil {
				return errResult, nil
			}
			taskID, errResult := requiredString(args, "taskId")
			if errResult != nil {
				return errResult, nil
			}

			items, err := sc.GraphClient().ListChecklistItems(ctx, taskListID, taskID)
			if err != nil {
				return toolError(err), nil
			}
			return jsonResult(items), nil
		}))

	createChecklistItemTool := mcp.NewTool("todo_create_checklist_item",
		mcp.WithDescription("Add a checklist item (subtask) to a task"),
		mcp.WithString("taskListId",
			mcp.Required(),
			mcp.Description("The ID of the task list"),
		),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("The ID of the task"),
		),
		mcp.WithString("displayName",
			mcp.Required(),
			mcp.Description("The checklist item text"),
		),
	)

	s.AddTool(createChecklistItemTool, common.InstrumentedToolHandler("todo_create_checklist_item", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			taskListID, errResult := requiredString(args, "taskListId")
			if errResult != nil {
				return errResult, nil
			}
			taskID, errResult := requiredString(args, "taskId")
			if errResult != nil {
				return errResult, nil
			}
			displayName, errResult := requiredString(args, "displayName")
			if errResult != nil {
				return errResult, nil
			}

			item, err := sc.GraphClient().CreateChecklistItem(ctx, taskListID, taskID, displayName)
			if err != nil {
				return toolError(err), nil
			}
			return jsonResult(item), nil
		}))

	if readOnly {
		return
	}

	updateChecklistItemTool := mcp.NewTool("todo_update_checklist_item",
		mcp.WithDescription("Update a checklist item's text or checked state"),
		mcp.WithString("taskListId",
			mcp.Required(),
			mcp.Description("The ID of the task list"),
		),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("The ID of the task"),
		),
		mcp.WithString("checklistItemId",
			mcp.Required(),
			mcp.Description("The ID of the checklist item"),
		),
		mcp.WithString("displayName",
			mcp.Required(),
			mcp.Description("The checklist item text"),
		),
		mcp.WithBoolean("isChecked",
			mcp.Description("Whether the item is checked (default: false)"),
		),
	)

	s.AddTool(updateChecklistItemTool, common.InstrumentedToolHandler("todo_update_checklist_item", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			taskListID, errResult := requiredString(args, "taskListId")
			if errResult != nil {
				return errResult, nil
			}
			taskID, errResult := requiredString(args, "taskId")
			if errResult != nil {
				return errResult, nil
			}
			itemID, errResult := requiredString(args, "checklistItemId")
			if errResult != nil {
				return errResult, nil
			}
			displayName, errResult := requiredString(args, "displayName")
			if errResult != nil {
				return errResult, nil
			}

			item, err := sc.GraphClient().UpdateChecklistItem(ctx, taskListID, taskID, itemID,
				displayName, optionalBool(args, "isChecked"))
			if err != nil {
				return toolError(err), nil
			}
			return jsonResult(item), nil
		}))

	deleteChecklistItemTool := mcp.NewTool("todo_delete_checklist_item",
		mcp.WithDescription("Delete a checklist item from a task"),
		mcp.WithString("taskListId",
			mcp.Required(),
			mcp.Description("The ID of the task list"),
		),
		mcp.WithString("taskId",
			mcp.Required(),
			mcp.Description("The ID of the task"),
		),
		mcp.WithString("checklistItemId",
			mcp.Required(),
			mcp.Description("The ID of the checklist item to delete"),
		),
	)

	s.AddTool(deleteChecklistItemTool, common.InstrumentedToolHandler("todo_delete_checklist_item", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := request.GetArguments()
			taskListID, errResult := requiredString(args, "taskListId")
			if errResult != nil {
				return errResult, nil
			}
			taskID, errResult := requiredString(args, "taskId")
			if errResult != nil {
				return errResult, nil
			}
			itemID, errResult := requiredString(args, "checklistItemId")
			if errResult != nil {
				return errResult, nil
			}

			if err := sc.GraphClient().DeleteChecklistItem(ctx, taskListID, taskID, itemID); err != nil {
				return toolError(err), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Checklist item %s deleted", itemID)), nil
		}))
}

// registerAuthStatusTool registers the authentication status tool
func registerAuthStatusTool(s *mcpserver.MCPServer, sc *server.ServerContext) {
	authStatusTool := mcp.NewTool("todo_auth_status",
		mcp.WithDescription("Report whether valid Microsoft credentials are available and where they came from"),
	)

	s.AddTool(authStatusTool, common.InstrumentedToolHandler("todo_auth_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			type status struct {
				Authenticated bool   `json:"authenticated"`
				Source        string `json:"source,omitempty"`
				Refreshable   bool   `json:"refreshable,omitempty"`
				Detail        string `json:"detail,omitempty"`
			}

			rec, source, err := sc.TokenManager().Resolve()
			if err != nil {
				return jsonResult(status{
					Authenticated: false,
					Detail:        "No credentials found. Run 'mstodo auth' to sign in.",
				}), nil
			}
			return jsonResult(status{
				Authenticated: true,
				Source:        string(source),
				Refreshable:   rec.RefreshToken != "",
			}), nil
		}))
}
