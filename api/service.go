package api

import (
	"net/url"

	"mockbase/models"
)

// Request carries the parsed pieces of a dispatched request: the path
// tokens remaining after the service name, the query parameters and the
// decoded JSON body (nil when the body is absent or not an object).
type Request struct {
	Method string
	Tokens []string
	Query  url.Values
	Body   models.Record
}

// Handler serves one service action. A nil result with a nil error
// produces an empty 204 response.
type Handler func(ctx *Context, req *Request) (any, error)

type action struct {
	method  string
	pattern string
	handler Handler
}

// Service routes requests inside one mounted service. Registrations are
// matched in order against (method, first remaining token): "*" matches
// anything without capturing, ":name" matches anything and records the
// token under name in ctx.Params, a literal matches only itself. The
// first match wins and the handler receives the tokens after the matched
// one. An unmatched request yields no result, which the dispatcher turns
// into an empty 204 response rather than a 404.
type Service struct {
	actions []action
}

// NewService creates an empty service.
func NewService() *Service {
	return &Service{}
}

// Register adds an action for an arbitrary HTTP method.
func (s *Service) Register(method, pattern string, handler Handler) {
	s.actions = append(s.actions, action{method: method, pattern: pattern, handler: handler})
}

func (s *Service) Get(pattern string, handler Handler)    { s.Register("GET", pattern, handler) }
func (s *Service) Post(pattern string, handler Handler)   { s.Register("POST", pattern, handler) }
func (s *Service) Put(pattern string, handler Handler)    { s.Register("PUT", pattern, handler) }
func (s *Service) Patch(pattern string, handler Handler)  { s.Register("PATCH", pattern, handler) }
func (s *Service) Delete(pattern string, handler Handler) { s.Register("DELETE", pattern, handler) }

// Handle finds the first matching action and invokes it. A request
// matching no action returns (nil, nil).
func (s *Service) Handle(ctx *Context, req *Request) (any, error) {
	first := ""
	if len(req.Tokens) > 0 {
		first = req.Tokens[0]
	}
	for _, a := range s.actions {
		if a.method != req.Method {
			continue
		}
		if !matchAndAssignParams(ctx, first, a.pattern) {
			continue
		}
		rest := []string{}
		if len(req.Tokens) > 1 {
			rest = req.Tokens[1:]
		}
		return a.handler(ctx, &Request{Method: req.Method, Tokens: rest, Query: req.Query, Body: req.Body})
	}
	return nil, nil
}

// matchAndAssignParams matches one token against a pattern. ":name" and
// "*" match even an absent token, so an action like GET ":collection" also
// answers the bare service path.
func matchAndAssignParams(ctx *Context, token, pattern string) bool {
	switch {
	case pattern == "*":
		return true
	case len(pattern) > 0 && pattern[0] == ':':
		ctx.Params[pattern[1:]] = token
		return true
	default:
		return token == pattern
	}
}
