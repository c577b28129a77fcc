package mcp

import (
	"context"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/digitarald/vscode-agent-todos-sub000/internal/archive"
	"github.com/digitarald/vscode-agent-todos-sub000/internal/todo"
)

// Resource URIs. The current list is a singleton; saved snapshots are
// addressable by slug under the saved prefix.
const (
	currentResourceURI  = "todos://current"
	savedResourcePrefix = "todos://saved/"
	savedURITemplate    = savedResourcePrefix + "{slug}"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcpsdk.Resource{
		URI:         currentResourceURI,
		Name:        "current-todos",
		Title:       "Current todo list",
		Description: "Always-current markdown rendering of the shared todo list. Subscribe to be notified on change.",
		MIMEType:    "text/markdown",
	}, s.handleCurrentResource)
	s.mcpServer.AddResourceTemplate(&mcpsdk.ResourceTemplate{
		URITemplate: savedURITemplate,
		Name:        "saved-todos",
		Title:       "Saved todo list",
		Description: "Immutable snapshot of a previously saved todo list, addressed by slug.",
		MIMEType:    "text/markdown",
	}, s.handleSavedResource)
	for _, snap := range s.archive.List() {
		s.addSnapshotResource(snap)
	}
}

// addSnapshotResource makes a newly archived snapshot discoverable via
// resources/list in addition to the template addressing.
func (s *Server) addSnapshotResource(snap archive.Snapshot) {
	s.mcpServer.AddResource(&mcpsdk.Resource{
		URI:         savedResourcePrefix + snap.Slug,
		Name:        "saved-todos-" + snap.Slug,
		Title:       snap.Title,
		Description: "Saved todo list snapshot.",
		MIMEType:    "text/markdown",
	}, s.handleSavedResource)
	s.resourceLog.Debug("snapshot resource registered", "slug", snap.Slug)
}

func (s *Server) handleCurrentResource(_ context.Context, _ *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
	list, err := s.agent.Load()
	if err != nil {
		return nil, err
	}
	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{{
			URI:      currentResourceURI,
			MIMEType: "text/markdown",
			Text:     todo.RenderMarkdown(list),
		}},
	}, nil
}

func (s *Server) handleSavedResource(_ context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
	uri := ""
	if req != nil && req.Params != nil {
		uri = strings.TrimSpace(req.Params.URI)
	}
	slug := strings.TrimPrefix(uri, savedResourcePrefix)
	snap, ok := s.archive.Get(slug)
	if !ok {
		return nil, mcpsdk.ResourceNotFoundError(uri)
	}
	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{{
			URI:      uri,
			MIMEType: "text/markdown",
			Text:     todo.RenderMarkdown(todo.TaskList{Title: snap.Title, Tasks: snap.Tasks}),
		}},
	}, nil
}

// handleSubscribe validates the target URI and records the subscription on
// the session; the SDK routes subsequent ResourceUpdated notifications.
func (s *Server) handleSubscribe(_ context.Context, req *mcpsdk.SubscribeRequest) error {
	uri := ""
	if req != nil && req.Params != nil {
		uri = strings.TrimSpace(req.Params.URI)
	}
	if !s.knownResourceURI(uri) {
		return mcpsdk.ResourceNotFoundError(uri)
	}
	if req != nil {
		s.sessions.setSubscribed(req.Session, uri, true)
	}
	s.resourceLog.Debug("resource subscription added", "uri", uri)
	return nil
}

func (s *Server) handleUnsubscribe(_ context.Context, req *mcpsdk.UnsubscribeRequest) error {
	if req == nil || req.Params == nil {
		return nil
	}
	s.sessions.setSubscribed(req.Session, strings.TrimSpace(req.Params.URI), false)
	return nil
}

func (s *Server) knownResourceURI(uri string) bool {
	if uri == currentResourceURI {
		return true
	}
	if slug, ok := strings.CutPrefix(uri, savedResourcePrefix); ok {
		_, found := s.archive.Get(slug)
		return found
	}
	return false
}

// notifyCurrentChanged pushes a resource-updated notification for the
// current-list resource to subscribed sessions, best effort.
func (s *Server) notifyCurrentChanged() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.mcpServer.ResourceUpdated(ctx, &mcpsdk.ResourceUpdatedNotificationParams{
		URI: currentResourceURI,
	}); err != nil {
		s.resourceLog.Warn("resource update notification failed", "uri", currentResourceURI, "error", err)
	}
}

// handleComplete offers slug prefix completion for the saved-snapshot
// resource template.
func (s *Server) handleComplete(_ context.Context, req *mcpsdk.CompleteRequest) (*mcpsdk.CompleteResult, error) {
	if req == nil || req.Params == nil {
		return &mcpsdk.CompleteResult{}, nil
	}
	arg := req.Params.Argument
	if arg.Name != "slug" {
		return &mcpsdk.CompleteResult{}, nil
	}
	values := s.archive.CompleteSlug(strings.TrimSpace(arg.Value))
	return &mcpsdk.CompleteResult{
		Completion: mcpsdk.CompletionResultDetails{
			Values: values,
			Total:  len(values),
		},
	}, nil
}
