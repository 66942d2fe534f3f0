package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// CreateRequest asks the resource at ResourcePath to store Content.
type CreateRequest struct {
	ResourcePath  string
	NewResourceID string
	Content       json.RawMessage
}

// ActionRequest invokes a named action on the resource at ResourcePath.
type ActionRequest struct {
	ResourcePath string
	Action       string
	Content      json.RawMessage
}

// Response is what a handler returns. Content is JSON.
type Response struct {
	ID       string          `json:"_id,omitempty"`
	Revision string          `json:"_rev,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
}

// Connection is the request dispatch abstraction the activity logger talks to.
// It may be in-process (Router) or remote (HTTPConnection).
type Connection interface {
	Create(ctx context.Context, req CreateRequest) (Response, error)
	Action(ctx context.Context, req ActionRequest) (Response, error)
}

type CreateHandler func(ctx context.Context, req CreateRequest) (Response, error)
type ActionHandler func(ctx context.Context, req ActionRequest) (Response, error)

// Router dispatches requests to handlers registered by resource path.
// Registration is expected at startup; dispatch is safe for concurrent use.
type Router struct {
	mu      sync.RWMutex
	creates map[string]CreateHandler
	actions map[string]map[string]ActionHandler
}

func New() *Router {
	return &Router{
		creates: make(map[string]CreateHandler),
		actions: make(map[string]map[string]ActionHandler),
	}
}

func (r *Router) HandleCreate(path string, h CreateHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates[normalize(path)] = h
}

func (r *Router) HandleAction(path, action string, h ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := normalize(path)
	if r.actions[p] == nil {
		r.actions[p] = make(map[string]ActionHandler)
	}
	r.actions[p][action] = h
}

func (r *Router) Create(ctx context.Context, req CreateRequest) (Response, error) {
	r.mu.RLock()
	h, ok := r.creates[normalize(req.ResourcePath)]
	r.mu.RUnlock()
	if !ok {
		return Response{}, NewNotFound(fmt.Sprintf("resource %q not found", req.ResourcePath))
	}
	return h(ctx, req)
}

func (r *Router) Action(ctx context.Context, req ActionRequest) (Response, error) {
	r.mu.RLock()
	byName, found := r.actions[normalize(req.ResourcePath)]
	h, ok := byName[req.Action]
	r.mu.RUnlock()
	if !found {
		return Response{}, NewNotFound(fmt.Sprintf("resource %q not found", req.ResourcePath))
	}
	if !ok {
		return Response{}, NewBadRequest(fmt.Sprintf("action %q not supported on %q", req.Action, req.ResourcePath))
	}
	return h(ctx, req)
}

func normalize(path string) string {
	return strings.Trim(path, "/")
}
