package api

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mockbase/models"
	"mockbase/utils"
)

// Dispatcher routes every request that no static route claimed. It parses
// the path into a service name plus remaining tokens, builds a request
// context through the plugin chain and serializes the service result:
// JSON with 200, an empty 204 without Content-Type for a nil result, the
// declared status with a {code, message} envelope for service errors, and
// a bare 500 for anything unrecognized.
type Dispatcher struct {
	plugins  []Plugin
	services map[string]*Service
	flags    *Flags
}

// NewDispatcher wires the plugin chain and the mounted services.
func NewDispatcher(plugins []Plugin, services map[string]*Service, flags *Flags) *Dispatcher {
	return &Dispatcher{plugins: plugins, services: services, flags: flags}
}

// Handle is mounted as the gin NoRoute handler.
func (d *Dispatcher) Handle(c *gin.Context) {
	log.Printf("INFO: << %s %s", c.Request.Method, c.Request.URL)

	c.Header("Access-Control-Allow-Origin", "*")

	// preflight requests skip plugins and services entirely
	if c.Request.Method == http.MethodOptions {
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Credentials", "false")
		c.Header("Access-Control-Max-Age", "86400")
		c.Header("Access-Control-Allow-Headers", "X-Requested-With, X-HTTP-Method-Override, Content-Type, Accept, X-Authorization, X-Admin")
		c.Status(http.StatusOK)
		return
	}

	path := c.Request.URL.Path
	// the admin panel uses relative asset paths, so force the trailing slash
	if strings.HasSuffix(path, "/admin") {
		c.Redirect(http.StatusFound, path+"/")
		return
	}

	tokens := splitPath(path)
	serviceName := ""
	if len(tokens) > 0 {
		serviceName = tokens[0]
		tokens = tokens[1:]
	}

	// reserved services bypass the plugin machinery
	switch serviceName {
	case "admin":
		serveAdmin(c, tokens)
		return
	case "favicon.ico":
		serveFavicon(c)
		return
	}

	ctx := &Context{Params: map[string]string{}}
	for _, plugin := range d.plugins {
		if err := plugin(ctx, c); err != nil {
			d.respondError(c, err)
			return
		}
	}

	service, ok := d.services[serviceName]
	if !ok {
		log.Printf("ERROR: missing service %s", serviceName)
		d.respond(c, http.StatusBadRequest, utils.ErrorBody{
			Code:    http.StatusBadRequest,
			Message: fmt.Sprintf("Service %q is not supported", serviceName),
		})
		return
	}

	result, err := service.Handle(ctx, &Request{
		Method: c.Request.Method,
		Tokens: tokens,
		Query:  c.Request.URL.Query(),
		Body:   decodeBody(c),
	})
	if err != nil {
		d.respondError(c, err)
		return
	}
	if result == nil {
		// no result means an empty response without a Content-Type, so
		// clients can tell it apart from JSON null
		d.throttle()
		c.Status(http.StatusNoContent)
		return
	}
	d.respond(c, http.StatusOK, result)
}

func (d *Dispatcher) respondError(c *gin.Context, err error) {
	if se, ok := utils.AsServiceError(err); ok {
		status := se.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		d.respond(c, status, utils.ErrorBody{Code: status, Message: se.Message})
		return
	}
	log.Printf("ERROR: unhandled service fault: %v", err)
	d.respond(c, http.StatusInternalServerError, utils.ErrorBody{
		Code:    http.StatusInternalServerError,
		Message: "Server Error",
	})
}

func (d *Dispatcher) respond(c *gin.Context, status int, body any) {
	d.throttle()
	c.JSON(status, body)
}

// throttle delays the response by 500-1000 ms when the throttle flag is
// on, to let clients exercise their loading states.
func (d *Dispatcher) throttle() {
	if d.flags != nil && d.flags.Throttle() {
		time.Sleep(500*time.Millisecond + time.Duration(rand.Int63n(500))*time.Millisecond)
	}
}

func splitPath(path string) []string {
	tokens := []string{}
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// decodeBody parses the request body as a JSON object. Anything else,
// including an empty body, yields nil; handlers that need a body validate
// for themselves.
func decodeBody(c *gin.Context) models.Record {
	if c.Request.Body == nil {
		return nil
	}
	var body models.Record
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		return nil
	}
	return body
}
