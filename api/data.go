package api

import (
	"log"

	"mockbase/auth"
	"mockbase/models"
	"mockbase/query"
	"mockbase/utils"
)

// NewDataService builds the rule-checked collection service: full CRUD
// with the query DSL on reads and ownership stamping on creates.
func NewDataService() *Service {
	s := NewService()
	s.Get(":collection", dataGet)
	s.Post(":collection", dataPost)
	s.Put(":collection", dataPut)
	s.Patch(":collection", dataPatch)
	s.Delete(":collection", dataDelete)
	return s
}

func dataGet(ctx *Context, req *Request) (any, error) {
	if err := validateTokens(req.Tokens); err != nil {
		return nil, err
	}
	collection := ctx.Params["collection"]
	if collection == "" {
		return ctx.Storage.Collections(), nil
	}

	resolve := loadResolver(ctx)

	if req.Query.Get("where") == "" && len(req.Tokens) == 1 {
		record, err := ctx.Storage.Get(collection, req.Tokens[0])
		if err != nil {
			return nil, err
		}
		result, err := query.Apply(record, req.Query, resolve)
		if err != nil {
			return nil, err
		}
		if out, ok := result.(models.Record); ok {
			if err := ctx.CanAccess(req.Method, out, nil); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	records, err := ctx.Storage.GetAll(collection)
	if err != nil {
		return nil, err
	}
	result, err := query.Apply(records, req.Query, resolve)
	if err != nil {
		return nil, err
	}
	if err := ctx.CanAccess(req.Method, nil, nil); err != nil {
		return nil, err
	}
	if list, ok := result.([]models.Record); ok {
		ctx.Rules.RedactList(collection, ctx.User, list, ctx.Admin)
	}
	return result, nil
}

func dataPost(ctx *Context, req *Request) (any, error) {
	log.Printf("INFO: request body: %v", req.Body)

	if len(req.Tokens) > 0 {
		return nil, utils.NewRequestError("Use PUT to update records")
	}
	if err := ctx.CanAccess(req.Method, nil, req.Body); err != nil {
		return nil, err
	}

	body := req.Body
	if body == nil {
		body = models.Record{}
	}
	if ctx.User != nil {
		body[models.FieldOwnerID] = ctx.User.ID()
	}
	return ctx.Storage.Add(ctx.Params["collection"], body), nil
}

func dataPut(ctx *Context, req *Request) (any, error) {
	return dataUpdate(ctx, req, ctx.Storage.Set)
}

func dataPatch(ctx *Context, req *Request) (any, error) {
	return dataUpdate(ctx, req, ctx.Storage.Merge)
}

func dataUpdate(ctx *Context, req *Request, apply func(string, string, models.Record) (models.Record, error)) (any, error) {
	log.Printf("INFO: request body: %v", req.Body)

	if len(req.Tokens) != 1 {
		return nil, utils.NewRequestError("Missing entry ID")
	}
	if req.Body == nil {
		return nil, utils.NewRequestError("")
	}
	collection, id := ctx.Params["collection"], req.Tokens[0]

	existing, err := ctx.Storage.Get(collection, id)
	if err != nil {
		return nil, utils.NewNotFound("")
	}
	if err := ctx.CanAccess(req.Method, existing, req.Body); err != nil {
		return nil, err
	}
	return apply(collection, id, req.Body)
}

func dataDelete(ctx *Context, req *Request) (any, error) {
	if len(req.Tokens) != 1 {
		return nil, utils.NewRequestError("Missing entry ID")
	}
	collection, id := ctx.Params["collection"], req.Tokens[0]

	existing, err := ctx.Storage.Get(collection, id)
	if err != nil {
		return nil, utils.NewNotFound("")
	}
	if err := ctx.CanAccess(req.Method, existing, nil); err != nil {
		return nil, err
	}
	return ctx.Storage.Delete(collection, id)
}

// validateTokens rejects paths deeper than collection/id.
func validateTokens(tokens []string) error {
	if len(tokens) > 1 {
		return utils.NewRequestError("")
	}
	return nil
}

// loadResolver backs the query DSL's load stage. The reserved users
// collection is served from protected storage with password fields
// stripped regardless of the caller.
func loadResolver(ctx *Context) query.LoadResolver {
	return func(collection, id string) (models.Record, error) {
		if collection == "users" {
			user, err := ctx.Protected.Get(collection, id)
			if err != nil {
				return nil, err
			}
			return auth.Sanitize(user), nil
		}
		return ctx.Storage.Get(collection, id)
	}
}
