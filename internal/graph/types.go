package graph

import (
	"time"
)

// TaskList represents a To Do task list.
type TaskList struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	IsOwner           bool   `json:"isOwner"`
	IsShared          bool   `json:"isShared"`
	WellknownListName string `json:"wellknownListName,omitempty"`
}

// Task represents a To Do task.
type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Body         string    `json:"body,omitempty"`
	Status       string    `json:"status"` // "notStarted", "inProgress", "completed", ...
	Importance   string    `json:"importance,omitempty"`
	Categories   []string  `json:"categories,omitempty"`
	Due          time.Time `json:"due,omitempty"`
	Reminder     time.Time `json:"reminder,omitempty"`
	Completed    time.Time `json:"completed,omitempty"`
	Created      time.Time `json:"created,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
}

// ChecklistItem represents a subtask of a To Do task.
type ChecklistItem struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	IsChecked   bool      `json:"isChecked"`
	Created     time.Time `json:"created,omitempty"`
	Checked     time.Time `json:"checked,omitempty"`
}

// TaskInput carries the writable fields of a task. Zero values are omitted
// from the request so partial updates touch only what the caller set.
type TaskInput struct {
	Title      string
	Body       string
	Status     string
	Importance string
	Categories []string
	Due        time.Time
	Reminder   time.Time
}

// graphTimeZone is the zone all due/reminder instants are sent in. Graph
// stores the zone alongside the timestamp, so UTC keeps round trips exact.
const graphTimeZone = "UTC"

// dateTimeTimeZone is Graph's split timestamp representation.
type dateTimeTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// graphTimeLayout matches Graph's fractional-second local timestamps.
const graphTimeLayout = "2006-01-02T15:04:05.9999999"

func (d *dateTimeTimeZone) toTime() time.Time {
	if d == nil || d.DateTime == "" {
		return time.Time{}
	}
	loc := time.UTC
	if d.TimeZone != "" && d.TimeZone != graphTimeZone {
		if l, err := time.LoadLocation(d.TimeZone); err == nil {
			loc = l
		}
	}
	if t, err := time.ParseInLocation(graphTimeLayout, d.DateTime, loc); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, d.DateTime); err == nil {
		return t
	}
	return time.Time{}
}

func toDateTimeTimeZone(t time.Time) *dateTimeTimeZone {
	if t.IsZero() {
		return nil
	}
	return &dateTimeTimeZone{
		DateTime: t.UTC().Format(graphTimeLayout),
		TimeZone: graphTimeZone,
	}
}

// itemBody is Graph's rich-content wrapper. Only text content is produced
// or consumed here.
type itemBody struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

// todoTaskList is the wire form of a task list.
type todoTaskList struct {
	ID                string `json:"id,omitempty"`
	DisplayName       string `json:"displayName,omitempty"`
	IsOwner           bool   `json:"isOwner,omitempty"`
	IsShared          bool   `json:"isShared,omitempty"`
	WellknownListName string `json:"wellknownListName,omitempty"`
}

// todoTask is the wire form of a task.
type todoTask struct {
	ID                   string            `json:"id,omitempty"`
	Title                string            `json:"title,omitempty"`
	Body                 *itemBody         `json:"body,omitempty"`
	Status               string            `json:"status,omitempty"`
	Importance           string            `json:"importance,omitempty"`
	Categories           []string          `json:"categories,omitempty"`
	DueDateTime          *dateTimeTimeZone `json:"dueDateTime,omitempty"`
	ReminderDateTime     *dateTimeTimeZone `json:"reminderDateTime,omitempty"`
	CompletedDateTime    *dateTimeTimeZone `json:"completedDateTime,omitempty"`
	CreatedDateTime      string            `json:"createdDateTime,omitempty"`
	LastModifiedDateTime string            `json:"lastModifiedDateTime,omitempty"`
}

// wireChecklistItem is the wire form of a checklist item.
type wireChecklistItem struct {
	ID              string `json:"id,omitempty"`
	DisplayName     string `json:"displayName,omitempty"`
	IsChecked       bool   `json:"isChecked"`
	CreatedDateTime string `json:"createdDateTime,omitempty"`
	CheckedDateTime string `json:"checkedDateTime,omitempty"`
}

// toTaskList converts a wire task list to the domain type.
func toTaskList(tl *todoTaskList) TaskList {
	if tl == nil {
		return TaskList{}
	}
	return TaskList{
		ID:                tl.ID,
		DisplayName:       tl.DisplayName,
		IsOwner:           tl.IsOwner,
		IsShared:          tl.IsShared,
		WellknownListName: tl.WellknownListName,
	}
}

// toTask converts a wire task to the domain type.
func toTask(t *todoTask) Task {
	if t == nil {
		return Task{}
	}
	result := Task{
		ID:         t.ID,
		Title:      t.Title,
		Status:     t.Status,
		Importance: t.Importance,
		Categories: t.Categories,
		Due:        t.DueDateTime.toTime(),
		Reminder:   t.ReminderDateTime.toTime(),
		Completed:  t.CompletedDateTime.toTime(),
	}
	if t.Body != nil {
		result.Body = t.Body.Content
	}
	if t.CreatedDateTime != "" {
		if created, err := time.Parse(time.RFC3339, t.CreatedDateTime); err == nil {
			result.Created = created
		}
	}
	if t.LastModifiedDateTime != "" {
		if modified, err := time.Parse(time.RFC3339, t.LastModifiedDateTime); err == nil {
			result.LastModified = modified
		}
	}
	return result
}

// toChecklistItem converts a wire checklist item to the domain type.
func toChecklistItem(ci *wireChecklistItem) ChecklistItem {
	if ci == nil {
		return ChecklistItem{}
	}
	result := ChecklistItem{
		ID:          ci.ID,
		DisplayName: ci.DisplayName,
		IsChecked:   ci.IsChecked,
	}
	if ci.CreatedDateTime != "" {
		if created, err := time.Parse(time.RFC3339, ci.CreatedDateTime); err == nil {
			result.Created = created
		}
	}
	if ci.CheckedDateTime != "" {
		if checked, err := time.Parse(time.RFC3339, ci.CheckedDateTime); err == nil {
			result.Checked = checked
		}
	}
	return result
}

// fromTaskInput builds the wire patch body for a create or update. Only
// fields the caller set are serialized.
func fromTaskInput(input TaskInput) *todoTask {
	t := &todoTask{
		Title:      input.Title,
		Status:     input.Status,
		Importance: input.Importance,
		Categories: input.Categories,
	}
	if input.Body != "" {
		t.Body = &itemBody{Content: input.Body, ContentType: "text"}
	}
	t.DueDateTime = toDateTimeTimeZone(input.Due)
	t.ReminderDateTime = toDateTimeTimeZone(input.Reminder)
	return t
}
