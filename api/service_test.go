package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(name string) Handler {
	return func(ctx *Context, req *Request) (any, error) {
		return name, nil
	}
}

func handle(t *testing.T, s *Service, method string, tokens ...string) (any, map[string]string) {
	t.Helper()
	ctx := &Context{Params: map[string]string{}}
	result, err := s.Handle(ctx, &Request{Method: method, Tokens: tokens})
	require.NoError(t, err)
	return result, ctx.Params
}

func TestServiceLiteralMatch(t *testing.T) {
	s := NewService()
	s.Get("me", echoHandler("me"))
	s.Post("login", echoHandler("login"))

	result, _ := handle(t, s, "GET", "me")
	assert.Equal(t, "me", result)

	result, _ = handle(t, s, "POST", "login")
	assert.Equal(t, "login", result)

	// method mismatch falls through to no match
	result, _ = handle(t, s, "POST", "me")
	assert.Nil(t, result)
}

func TestServiceParamCapture(t *testing.T) {
	s := NewService()
	s.Get(":collection", echoHandler("data"))

	result, params := handle(t, s, "GET", "books")
	assert.Equal(t, "data", result)
	assert.Equal(t, "books", params["collection"])
}

func TestServiceParamMatchesAbsentToken(t *testing.T) {
	// GET on the bare service path still reaches a ":collection" action,
	// capturing the empty string. The handler decides what that means.
	s := NewService()
	s.Get(":collection", echoHandler("data"))

	result, params := handle(t, s, "GET")
	assert.Equal(t, "data", result)

	captured, ok := params["collection"]
	assert.True(t, ok)
	assert.Equal(t, "", captured)
}

func TestServiceWildcardMatch(t *testing.T) {
	s := NewService()
	s.Post("*", echoHandler("anything"))

	result, params := handle(t, s, "POST", "whatever")
	assert.Equal(t, "anything", result)
	assert.Empty(t, params)

	result, _ = handle(t, s, "POST")
	assert.Equal(t, "anything", result)
}

func TestServiceFirstMatchWins(t *testing.T) {
	s := NewService()
	s.Get("me", echoHandler("literal"))
	s.Get(":collection", echoHandler("param"))

	result, _ := handle(t, s, "GET", "me")
	assert.Equal(t, "literal", result)

	result, _ = handle(t, s, "GET", "books")
	assert.Equal(t, "param", result)
}

func TestServiceUnmatchedReturnsNothing(t *testing.T) {
	s := NewService()
	s.Get("me", echoHandler("me"))

	ctx := &Context{Params: map[string]string{}}
	result, err := s.Handle(ctx, &Request{Method: "DELETE", Tokens: []string{"me"}})
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestServiceHandlerGetsRemainingTokens(t *testing.T) {
	s := NewService()
	var seen []string
	s.Get(":collection", func(ctx *Context, req *Request) (any, error) {
		seen = req.Tokens
		return nil, nil
	})

	handle(t, s, "GET", "books", "abc123")
	require.Equal(t, []string{"abc123"}, seen)

	handle(t, s, "GET", "books")
	assert.Empty(t, seen)
}
