package api

import (
	"mockbase/models"
	"mockbase/utils"
)

// NewJSONStoreService builds the unauthenticated scratch-pad service:
// plain CRUD against the shared store with no rules and no ownership.
func NewJSONStoreService() *Service {
	s := NewService()
	s.Get(":collection", jsonstoreGet)
	s.Post(":collection", jsonstorePost)
	s.Put(":collection", jsonstorePut)
	s.Patch(":collection", jsonstorePatch)
	s.Delete(":collection", jsonstoreDelete)
	return s
}

func jsonstoreGet(ctx *Context, req *Request) (any, error) {
	if err := validateTokens(req.Tokens); err != nil {
		return nil, err
	}
	collection := ctx.Params["collection"]
	if collection == "" {
		return ctx.Storage.Collections(), nil
	}
	if len(req.Tokens) == 1 {
		return ctx.Storage.Get(collection, req.Tokens[0])
	}
	return ctx.Storage.GetAll(collection)
}

func jsonstorePost(ctx *Context, req *Request) (any, error) {
	if len(req.Tokens) > 0 {
		return nil, utils.NewRequestError("Use PUT to update records")
	}
	body := req.Body
	if body == nil {
		body = models.Record{}
	}
	return ctx.Storage.Add(ctx.Params["collection"], body), nil
}

func jsonstorePut(ctx *Context, req *Request) (any, error) {
	if len(req.Tokens) != 1 {
		return nil, utils.NewRequestError("Missing entry ID")
	}
	if req.Body == nil {
		return nil, utils.NewRequestError("")
	}
	return ctx.Storage.Set(ctx.Params["collection"], req.Tokens[0], req.Body)
}

func jsonstorePatch(ctx *Context, req *Request) (any, error) {
	if len(req.Tokens) != 1 {
		return nil, utils.NewRequestError("Missing entry ID")
	}
	if req.Body == nil {
		return nil, utils.NewRequestError("")
	}
	return ctx.Storage.Merge(ctx.Params["collection"], req.Tokens[0], req.Body)
}

func jsonstoreDelete(ctx *Context, req *Request) (any, error) {
	if len(req.Tokens) != 1 {
		return nil, utils.NewRequestError("Missing entry ID")
	}
	return ctx.Storage.Delete(ctx.Params["collection"], req.Tokens[0])
}
