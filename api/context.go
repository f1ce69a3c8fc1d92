package api

import (
	"sync"

	"github.com/gin-gonic/gin"

	"mockbase/auth"
	"mockbase/models"
	"mockbase/rules"
	"mockbase/store"
)

// Context is the per-request bag handed to service handlers. It is built
// fresh for every dispatched request by running the plugin chain in order.
type Context struct {
	Params    map[string]string
	Storage   *store.Store
	Protected *store.Store
	User      models.Record // nil for guests
	Util      *Flags
	Auth      *auth.Provider
	Rules     *rules.Engine
	Admin     bool // privileged override header present
}

// CanAccess runs the rule engine for the current request. data is the
// existing record (nil for creates and lists), payload the incoming body.
func (ctx *Context) CanAccess(method string, data, payload models.Record) error {
	return ctx.Rules.Authorize(rules.Access{
		Action:     rules.ActionForMethod(method),
		Collection: ctx.Params["collection"],
		User:       ctx.User,
		Record:     data,
		Payload:    payload,
		Admin:      ctx.Admin,
	})
}

// Plugin decorates the request context. Plugins run in registration order;
// an error aborts the request with that error.
type Plugin func(ctx *Context, c *gin.Context) error

// StoragePlugin attaches the shared stores.
func StoragePlugin(storage, protected *store.Store) Plugin {
	return func(ctx *Context, c *gin.Context) error {
		ctx.Storage = storage
		ctx.Protected = protected
		return nil
	}
}

// AuthPlugin resolves the X-Authorization token into a user. No header
// means guest; a header that resolves to nothing fails the whole request.
func AuthPlugin(provider *auth.Provider) Plugin {
	return func(ctx *Context, c *gin.Context) error {
		ctx.Auth = provider
		token := c.GetHeader("X-Authorization")
		if token == "" {
			return nil
		}
		user, err := provider.ResolveToken(token)
		if err != nil {
			return err
		}
		ctx.User = user
		return nil
	}
}

// UtilPlugin attaches the shared service flags.
func UtilPlugin(flags *Flags) Plugin {
	return func(ctx *Context, c *gin.Context) error {
		ctx.Util = flags
		return nil
	}
}

// RulesPlugin attaches the rule engine and reads the X-Admin override.
func RulesPlugin(engine *rules.Engine) Plugin {
	return func(ctx *Context, c *gin.Context) error {
		ctx.Rules = engine
		_, ctx.Admin = c.Request.Header["X-Admin"]
		return nil
	}
}

// Flags is the shared mutable flag map behind the util service. Only
// throttle is predefined; clients may define others at will.
type Flags struct {
	mu     sync.RWMutex
	values map[string]bool
}

// NewFlags creates the flag map with throttle off.
func NewFlags() *Flags {
	return &Flags{values: map[string]bool{"throttle": false}}
}

// Get returns the flag value and whether the flag is defined.
func (f *Flags) Get(name string) (bool, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[name]
	return v, ok
}

// Set defines or updates a flag.
func (f *Flags) Set(name string, value bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

// Throttle reports whether response throttling is on.
func (f *Flags) Throttle() bool {
	v, _ := f.Get("throttle")
	return v
}
