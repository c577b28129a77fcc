package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/todo"
)

// Tool names exposed to agent clients.
const (
	toolRead  = "todos_read"
	toolWrite = "todos_write"
)

const readDisabledNotice = "The todos_read tool is currently disabled: the todo list is injected into your context automatically."

type readToolInput struct{}

type readToolOutput struct {
	Title        string      `json:"title"`
	DisplayTitle string      `json:"display_title"`
	Todos        []todo.Task `json:"todos"`
}

type subtaskInput struct {
	ID      string `json:"id" jsonschema:"Opaque unique subtask identifier"`
	Content string `json:"content" jsonschema:"Subtask description"`
	Status  string `json:"status" jsonschema:"Subtask status: pending or completed"`
}

type taskInput struct {
	ID       string         `json:"id" jsonschema:"Opaque unique task identifier, caller-assigned"`
	Content  string         `json:"content" jsonschema:"Task description, non-empty"`
	Status   string         `json:"status" jsonschema:"Task status: pending, in_progress or completed (at most one in_progress)"`
	Priority string         `json:"priority" jsonschema:"Task priority: low, medium or high"`
	Note     string         `json:"note,omitempty" jsonschema:"Optional architecture or decision note, max 500 characters"`
	Details  string         `json:"details,omitempty" jsonschema:"Optional free-form details"`
	Subtasks []subtaskInput `json:"subtasks,omitempty" jsonschema:"Optional ordered subtask checklist"`
}

// taskInputBasic is the write input shape advertised while the subtasks
// feature flag is off.
type taskInputBasic struct {
	ID       string `json:"id" jsonschema:"Opaque unique task identifier, caller-assigned"`
	Content  string `json:"content" jsonschema:"Task description, non-empty"`
	Status   string `json:"status" jsonschema:"Task status: pending, in_progress or completed (at most one in_progress)"`
	Priority string `json:"priority" jsonschema:"Task priority: low, medium or high"`
	Note     string `json:"note,omitempty" jsonschema:"Optional architecture or decision note, max 500 characters"`
	Details  string `json:"details,omitempty" jsonschema:"Optional free-form details"`
}

type writeToolInput struct {
	Title            string      `json:"title,omitempty" jsonschema:"Optional new list title; omit to keep the current title"`
	Todos            []taskInput `json:"todos" jsonschema:"The complete replacement todo list, in execution order"`
	CorrelationToken string      `json:"correlation_token,omitempty" jsonschema:"Optional opaque token echoed back on the write's progress notification"`
}

type writeToolInputBasic struct {
	Title            string           `json:"title,omitempty" jsonschema:"Optional new list title; omit to keep the current title"`
	Todos            []taskInputBasic `json:"todos" jsonschema:"The complete replacement todo list, in execution order"`
	CorrelationToken string           `json:"correlation_token,omitempty" jsonschema:"Optional opaque token echoed back on the write's progress notification"`
}

type writeToolOutput struct {
	Summary      string `json:"summary"`
	Title        string `json:"title"`
	TitleChanged bool   `json:"title_changed"`
	Pending      int    `json:"pending"`
	InProgress   int    `json:"in_progress"`
	Completed    int    `json:"completed"`
}

const toolReadDescription = "Read the current todo list: its title and every task in order, with status, priority, notes and subtasks."

const toolWriteDescription = "Replace the entire todo list. Always send the complete list; there is no partial update. " +
	"Keep exactly one task in_progress, preserve execution order, and carry over unchanged tasks verbatim."

func (s *Server) registerReadTool() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        toolRead,
		Description: toolReadDescription,
	}, s.handleReadTool)
}

func (s *Server) registerWriteTool(subtasks bool) {
	if subtasks {
		mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
			Name:        toolWrite,
			Description: toolWriteDescription,
		}, s.handleWriteTool)
		return
	}
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        toolWrite,
		Description: toolWriteDescription,
	}, s.handleWriteToolBasic)
}

func (s *Server) handleReadTool(_ context.Context, req *mcpsdk.CallToolRequest, _ readToolInput) (*mcpsdk.CallToolResult, readToolOutput, error) {
	s.sessions.touch(req.Session)
	if !s.caps.readExposed() {
		// Reachable when a client invokes against a stale tool list.
		s.metrics.observeTool(toolRead, nil)
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: readDisabledNotice}},
		}, readToolOutput{Todos: []todo.Task{}}, nil
	}
	list, err := s.agent.Load()
	if err != nil {
		s.metrics.observeTool(toolRead, err)
		return nil, readToolOutput{}, fmt.Errorf("load todos: %w", err)
	}
	s.metrics.observeTool(toolRead, nil)
	// Keep the todos array non-null in the wire form even when the list is
	// empty, so the output schema accepts it.
	out := readToolOutput{
		Title:        list.Title,
		DisplayTitle: list.DisplayTitle(),
		Todos:        append([]todo.Task{}, list.Tasks...),
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: todo.RenderMarkdown(list)}},
	}, out, nil
}

func (s *Server) handleWriteTool(ctx context.Context, req *mcpsdk.CallToolRequest, input writeToolInput) (*mcpsdk.CallToolResult, writeToolOutput, error) {
	tasks := make([]todo.Task, 0, len(input.Todos))
	for _, t := range input.Todos {
		tasks = append(tasks, taskFromInput(t))
	}
	return s.writeTodos(ctx, req, input.Title, input.CorrelationToken, tasks)
}

func (s *Server) handleWriteToolBasic(ctx context.Context, req *mcpsdk.CallToolRequest, input writeToolInputBasic) (*mcpsdk.CallToolResult, writeToolOutput, error) {
	tasks := make([]todo.Task, 0, len(input.Todos))
	for _, t := range input.Todos {
		tasks = append(tasks, taskFromInput(taskInput{
			ID: t.ID, Content: t.Content, Status: t.Status,
			Priority: t.Priority, Note: t.Note, Details: t.Details,
		}))
	}
	return s.writeTodos(ctx, req, input.Title, input.CorrelationToken, tasks)
}

func taskFromInput(in taskInput) todo.Task {
	out := todo.Task{
		ID:       strings.TrimSpace(in.ID),
		Content:  strings.TrimSpace(in.Content),
		Status:   todo.Status(in.Status),
		Priority: todo.Priority(in.Priority),
		Note:     in.Note,
		Details:  in.Details,
	}
	if out.Status == "" {
		out.Status = todo.StatusPending
	}
	if out.Priority == "" {
		out.Priority = todo.PriorityMedium
	}
	for _, sub := range in.Subtasks {
		status := todo.Status(sub.Status)
		if status == "" {
			status = todo.StatusPending
		}
		out.Subtasks = append(out.Subtasks, todo.Subtask{
			ID:      strings.TrimSpace(sub.ID),
			Content: strings.TrimSpace(sub.Content),
			Status:  status,
		})
	}
	return out
}

// writeTodos is the shared write pipeline: validate, mark the change as
// externally originated for the sync engine, commit, then push one
// best-effort progress notification. Validation failures are domain errors
// carried inside a successful tool result, never transport errors.
func (s *Server) writeTodos(ctx context.Context, req *mcpsdk.CallToolRequest, title, correlationToken string, tasks []todo.Task) (*mcpsdk.CallToolResult, writeToolOutput, error) {
	s.sessions.touch(req.Session)
	before, err := s.agent.Load()
	if err != nil {
		s.metrics.observeTool(toolWrite, err)
		return nil, writeToolOutput{}, fmt.Errorf("load todos: %w", err)
	}

	opts := todo.ValidateOptions{AllowSubtasks: s.caps.allowSubtasksWrite()}
	if err := todo.ValidateList(tasks, opts); err != nil {
		s.metrics.observeTool(toolWrite, err)
		s.toolLog.Debug("write rejected", "error", err)
		return &mcpsdk.CallToolResult{
			IsError: true,
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: "invalid todo list: " + err.Error()}},
		}, writeToolOutput{}, nil
	}

	newTitle := strings.TrimSpace(title)
	if newTitle == "" {
		newTitle = before.Title
	}
	next := todo.TaskList{Title: newTitle, Tasks: tasks}

	if s.engine != nil {
		s.engine.MarkExternal()
	}
	if err := s.agent.Save(next); err != nil {
		s.metrics.observeTool(toolWrite, err)
		return nil, writeToolOutput{}, fmt.Errorf("save todos: %w", err)
	}
	s.metrics.observeTool(toolWrite, nil)

	s.pushProgress(ctx, req, correlationToken, before, next)

	counts := next.CountByStatus()
	summary := writeSummary(before, next)
	out := writeToolOutput{
		Summary:      summary,
		Title:        next.Title,
		TitleChanged: before.Title != next.Title,
		Pending:      counts.Pending,
		InProgress:   counts.InProgress,
		Completed:    counts.Completed,
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: summary}},
	}, out, nil
}

// pushProgress delivers one progress notification correlated to the
// caller-supplied token. Delivery failures are logged, never retried, and do
// not fail the originating write.
func (s *Server) pushProgress(ctx context.Context, req *mcpsdk.CallToolRequest, correlationToken string, before, after todo.TaskList) {
	if req == nil || req.Session == nil {
		return
	}
	var token any
	if tok := strings.TrimSpace(correlationToken); tok != "" {
		token = tok
	} else if req.Params != nil {
		token = req.Params.GetProgressToken()
	}
	if token == nil {
		return
	}
	label := progressLabel(before, after)
	notifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := req.Session.NotifyProgress(notifyCtx, &mcpsdk.ProgressNotificationParams{
		ProgressToken: token,
		Progress:      float64(after.CountByStatus().Completed),
		Total:         float64(len(after.Tasks)),
		Message:       label,
	})
	if err != nil {
		s.toolLog.Warn("progress notification delivery failed", "error", err)
		return
	}
	s.metrics.notifications.Inc()
}

// writeSummary renders the human-readable result of a committed write.
func writeSummary(before, after todo.TaskList) string {
	counts := after.CountByStatus()
	var b strings.Builder
	fmt.Fprintf(&b, "Updated %s: %d pending, %d in progress, %d completed.",
		after.DisplayTitle(), counts.Pending, counts.InProgress, counts.Completed)
	if before.Title != after.Title {
		fmt.Fprintf(&b, " Title changed from %q to %q.", before.Title, after.Title)
	}
	notes, subtasks := 0, 0
	for _, t := range after.Tasks {
		if t.Note != "" {
			notes++
		}
		subtasks += len(t.Subtasks)
	}
	if notes > 0 {
		fmt.Fprintf(&b, " %d task(s) carry notes.", notes)
	}
	if subtasks > 0 {
		fmt.Fprintf(&b, " %d subtask(s) attached.", subtasks)
	}
	if counts.Total() > 0 && counts.InProgress == 0 && counts.Completed < counts.Total() {
		b.WriteString(" Reminder: no task is in_progress; mark the next task in_progress before working on it.")
	}
	return b.String()
}
