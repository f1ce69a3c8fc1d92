package api

import (
	"mockbase/auth"
	"mockbase/utils"
)

// NewUserService builds the account service: register, login, logout and
// the authenticated self-lookup.
func NewUserService() *Service {
	s := NewService()
	s.Get("me", userSelf)
	s.Post("register", userRegister)
	s.Post("login", userLogin)
	s.Get("logout", userLogout)
	return s
}

func userSelf(ctx *Context, req *Request) (any, error) {
	if ctx.User == nil {
		return nil, utils.NewAuthorizationError("")
	}
	return auth.Sanitize(ctx.User), nil
}

func userRegister(ctx *Context, req *Request) (any, error) {
	return ctx.Auth.Register(req.Body)
}

func userLogin(ctx *Context, req *Request) (any, error) {
	return ctx.Auth.Login(req.Body)
}

// userLogout returns no body on success so clients get an empty 204.
func userLogout(ctx *Context, req *Request) (any, error) {
	return nil, ctx.Auth.Logout(ctx.User)
}
