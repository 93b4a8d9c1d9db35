package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fakeTokens is a TokenSource with scripted behavior.
type fakeTokens struct {
	token        string
	refreshedTo  string
	refreshErr   error
	tokenErr     error
	refreshCalls atomic.Int64
}

func (f *fakeTokens) Token(_ context.Context) (string, error) {
	return f.token, f.tokenErr
}

func (f *fakeTokens) ForceRefresh(_ context.Context) (string, error) {
	f.refreshCalls.Add(1)
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	if f.refreshedTo != "" {
		f.token = f.refreshedTo
	}
	return f.token, nil
}

func TestClient_ListTaskLists(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/lists" {
			t.Errorf("path = %q, want /lists", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": [{"id": "l1", "displayName": "Tasks", "isOwner": true, "wellknownListName": "defaultList"}]}`))
	}))
	defer srv.Close()

	c := NewClient(&fakeTokens{token: "tok"}, slog.Default(), WithBaseURL(srv.URL))

	lists, err := c.ListTaskLists(context.Background())
	if err != nil {
		t.Fatalf("ListTaskLists() error = %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q, want Bearer tok", gotAuth)
	}
	if len(lists) != 1 {
		t.Fatalf("len(lists) = %d, want 1", len(lists))
	}
	if lists[0].ID != "l1" || lists[0].DisplayName != "Tasks" || !lists[0].IsOwner {
		t.Errorf("list = %+v", lists[0])
	}
}

func TestClient_ListTaskLists_Pagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`{"value": [{"id": "l2", "displayName": "Second"}]}`))
			return
		}
		next := srv.URL + "/lists?page=2"
		_, _ = fmt.Fprintf(w, `{"value": [{"id": "l1", "displayName": "First"}], "@odata.nextLink": %q}`, next)
	}))
	defer srv.Close()

	c := NewClient(&fakeTokens{token: "tok"}, slog.Default(), WithBaseURL(srv.URL))

	lists, err := c.ListTaskLists(context.Background())
	if err != nil {
		t.Fatalf("ListTaskLists() error = %v", err)
	}
	if len(lists) != 2 {
		t.Fatalf("len(lists) = %d, want 2 across pages", len(lists))
	}
	if lists[0].ID != "l1" || lists[1].ID != "l2" {
		t.Errorf("lists = %+v", lists)
	}
}

func TestClient_ListTasks_FiltersCompleted(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": []}`))
	}))
	defer srv.Close()

	c := NewClient(&fakeTokens{token: "tok"}, slog.Default(), WithBaseURL(srv.URL))

	if _, err := c.ListTasks(context.Background(), "l1", false); err != nil {
		t.Fatalf("ListTasks() error = %v", err)
	}
	if gotQuery != "$filter=status+ne+%27completed%27" {
		t.Errorf("query = %q, want the completed filter", gotQuery)
	}

	if _, err := c.ListTasks(context.Background(), "l1", true); err != nil {
		t.Fatalf("ListTasks(includeCompleted) error = %v", err)
	}
	if gotQuery != "" {
		t.Errorf("query = %q, want none when completed tasks are included", gotQuery)
	}
}

func TestClient_RetriesOnceAfterRefresh(t *testing.T) {
	var auths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		auths = append(auths, auth)
		if auth != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": {"code": "InvalidAuthenticationToken"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "t1", "title": "Buy milk"}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "stale", refreshedTo: "fresh"}
	c := NewClient(tokens, slog.Default(), WithBaseURL(srv.URL))

	task, err := c.GetTask(context.Background(), "l1", "t1")
	if err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if task.Title != "Buy milk" {
		t.Errorf("Title = %q, want Buy milk", task.Title)
	}
	if len(auths) != 2 || auths[0] != "Bearer stale" || auths[1] != "Bearer fresh" {
		t.Errorf("authorization sequence = %v, want stale then fresh", auths)
	}
	if got := tokens.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestClient_NoRetryWhenRefreshYieldsSameToken(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"code": "InvalidAuthenticationToken"}}`))
	}))
	defer srv.Close()

	// ForceRefresh succeeds but hands back the same token.
	tokens := &fakeTokens{token: "stale"}
	c := NewClient(tokens, slog.Default(), WithBaseURL(srv.URL))

	_, err := c.GetTask(context.Background(), "l1", "t1")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("GetTask() error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", httpErr.StatusCode)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1 (no retry with an unchanged token)", got)
	}
}

func TestClient_SurfacesErrorWhenRetryAlsoRejected(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"code": "InvalidAuthenticationToken"}}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "stale", refreshedTo: "fresh"}
	c := NewClient(tokens, slog.Default(), WithBaseURL(srv.URL))

	_, err := c.GetTask(context.Background(), "l1", "t1")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("GetTask() error = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", httpErr.StatusCode)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("requests = %d, want exactly 2 (no third attempt)", got)
	}
	if got := tokens.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestClient_NoRetryWhenRefreshFails(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"code": "InvalidAuthenticationToken"}}`))
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "stale", refreshErr: errors.New("not authenticated")}
	c := NewClient(tokens, slog.Default(), WithBaseURL(srv.URL))

	_, err := c.GetTask(context.Background(), "l1", "t1")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("GetTask() error = %v, want *HTTPError", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestClient_AccountCapabilityError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"code": "MailboxNotEnabledForRESTAPI", "message": "REST API is not yet supported for this mailbox."}}`))
	}))
	defer srv.Close()

	c := NewClient(&fakeTokens{token: "tok"}, slog.Default(), WithBaseURL(srv.URL))

	_, err := c.ListTaskLists(context.Background())
	var capErr *AccountCapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("ListTaskLists() error = %v, want *AccountCapabilityError", err)
	}
}

func TestClient_CreateTask_WireFormat(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "t1", "title": "Buy milk", "status": "notStarted"}`))
	}))
	defer srv.Close()

	c := NewClient(&fakeTokens{token: "tok"}, slog.Default(), WithBaseURL(srv.URL))

	due := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	task, err := c.CreateTask(context.Background(), "l1", TaskInput{
		Title: "Buy milk",
		Body:  "two liters",
		Due:   due,
	})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if task.ID != "t1" {
		t.Errorf("ID = %q, want t1", task.ID)
	}

	body, ok := gotBody["body"].(map[string]any)
	if !ok || body["content"] != "two liters" || body["contentType"] != "text" {
		t.Errorf("body block = %v, want text itemBody", gotBody["body"])
	}
	dueBlock, ok := gotBody["dueDateTime"].(map[string]any)
	if !ok || dueBlock["timeZone"] != "UTC" {
		t.Errorf("dueDateTime block = %v, want UTC dateTimeTimeZone", gotBody["dueDateTime"])
	}
}

func TestClient_DeleteTask(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(&fakeTokens{token: "tok"}, slog.Default(), WithBaseURL(srv.URL))

	if err := c.DeleteTask(context.Background(), "l1", "t1"); err != nil {
		t.Fatalf("DeleteTask() error = %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %q, want DELETE", gotMethod)
	}
	if gotPath != "/lists/l1/tasks/t1" {
		t.Errorf("path = %q, want /lists/l1/tasks/t1", gotPath)
	}
}

func TestClient_EscapesIDsInPaths(t *testing.T) {
	var gotRawPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRawPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x"}`))
	}))
	defer srv.Close()

	c := NewClient(&fakeTokens{token: "tok"}, slog.Default(), WithBaseURL(srv.URL))

	if _, err := c.GetTask(context.Background(), "list/with slash", "task id"); err != nil {
		t.Fatalf("GetTask() error = %v", err)
	}
	if gotRawPath != "/lists/list%2Fwith%20slash/tasks/task%20id" {
		t.Errorf("path = %q, IDs must be escaped", gotRawPath)
	}
}

func TestClient_OperationHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": []}`))
	}))
	defer srv.Close()

	type observed struct {
		operation string
		status    string
	}
	var hooks []observed
	hook := func(operation, status string, _ time.Duration) {
		hooks = append(hooks, observed{operation, status})
	}

	c := NewClient(&fakeTokens{token: "tok"}, slog.Default(),
		WithBaseURL(srv.URL), WithOperationHook(hook))

	if _, err := c.ListTaskLists(context.Background()); err != nil {
		t.Fatalf("ListTaskLists() error = %v", err)
	}
	if len(hooks) != 1 || hooks[0].operation != "list_task_lists" || hooks[0].status != "success" {
		t.Errorf("hooks = %v, want one list_task_lists success", hooks)
	}

	// A token failure is recorded as an error before any request is sent.
	hooks = nil
	c = NewClient(&fakeTokens{tokenErr: errors.New("not authenticated")}, slog.Default(),
		WithBaseURL(srv.URL), WithOperationHook(hook))
	if _, err := c.ListTaskLists(context.Background()); err == nil {
		t.Fatal("ListTaskLists() should fail without a token")
	}
	if len(hooks) != 1 || hooks[0].status != "error" {
		t.Errorf("hooks = %v, want one error", hooks)
	}
}
