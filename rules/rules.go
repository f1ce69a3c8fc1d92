// Package rules enforces declarative access control over collections. A
// rule set is compiled once at boot from JSON configuration; requests are
// checked in increasing specificity: global default, collection action
// rule, collection-wide property rules, record-specific rules.
package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"mockbase/models"
	"mockbase/utils"
)

// Actions recognized by the engine, keyed off the HTTP method.
const (
	ActionRead   = ".read"
	ActionCreate = ".create"
	ActionUpdate = ".update"
	ActionDelete = ".delete"
)

// ActionForMethod maps an HTTP method to its rule action, or "" for
// methods the engine does not police.
func ActionForMethod(method string) string {
	switch method {
	case "GET":
		return ActionRead
	case "POST":
		return ActionCreate
	case "PUT", "PATCH":
		return ActionUpdate
	case "DELETE":
		return ActionDelete
	}
	return ""
}

// Value is one compiled rule: a boolean, a role list, or a rule
// expression. An empty role list counts as absent so it falls through to
// the less specific level.
type Value struct {
	isBool bool
	allow  bool
	roles  []string
	expr   Expr
}

func compileValue(raw json.RawMessage) (*Value, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &Value{isBool: true, allow: b}, nil
	}
	var roles []string
	if err := json.Unmarshal(raw, &roles); err == nil {
		if len(roles) == 0 {
			return nil, nil
		}
		for _, role := range roles {
			if role != "Guest" && role != "User" && role != "Owner" {
				return nil, fmt.Errorf("unknown role %q", role)
			}
		}
		return &Value{roles: roles}, nil
	}
	var src string
	if err := json.Unmarshal(raw, &src); err == nil {
		if src == "" {
			return nil, nil
		}
		expr, err := CompileExpr(src)
		if err != nil {
			return nil, err
		}
		return &Value{expr: expr}, nil
	}
	return nil, fmt.Errorf("rule value must be a boolean, role list or expression: %s", raw)
}

type collectionRules struct {
	actions map[string]*Value
	props   map[string]map[string]*Value
	records map[string]*recordRules
}

type recordRules struct {
	actions map[string]*Value
	props   map[string]map[string]*Value
}

// Engine holds a compiled rule set.
type Engine struct {
	global      map[string]*Value
	collections map[string]*collectionRules
}

// Default returns the engine for the built-in rule set: anyone may read,
// authenticated users may create, only owners may update and delete.
func Default() *Engine {
	engine, err := Compile(nil)
	if err != nil {
		panic(err)
	}
	return engine
}

// Compile builds an engine from a JSON rule document. The built-in global
// defaults apply beneath whatever the document declares; nil input yields
// just the defaults. Malformed rules and invalid expressions fail here, at
// boot, never per-request.
func Compile(raw []byte) (*Engine, error) {
	engine := &Engine{
		global: map[string]*Value{
			ActionCreate: {roles: []string{"User"}},
			ActionUpdate: {roles: []string{"Owner"}},
			ActionDelete: {roles: []string{"Owner"}},
		},
		collections: map[string]*collectionRules{},
	}
	if raw == nil {
		return engine, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing rule set: %w", err)
	}

	for name, node := range doc {
		if name == "*" {
			actions, err := compileActions(node)
			if err != nil {
				return nil, fmt.Errorf("rule set %q: %w", name, err)
			}
			for action, value := range actions {
				engine.global[action] = value
			}
			continue
		}
		collection, err := compileCollection(node)
		if err != nil {
			return nil, fmt.Errorf("rule set %q: %w", name, err)
		}
		engine.collections[name] = collection
	}
	return engine, nil
}

func compileActions(raw json.RawMessage) (map[string]*Value, error) {
	var node map[string]json.RawMessage
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	actions := map[string]*Value{}
	for key, value := range node {
		if !strings.HasPrefix(key, ".") {
			return nil, fmt.Errorf("unexpected key %q, actions start with a dot", key)
		}
		compiled, err := compileValue(value)
		if err != nil {
			return nil, fmt.Errorf("action %q: %w", key, err)
		}
		if compiled != nil {
			actions[key] = compiled
		}
	}
	return actions, nil
}

func compileCollection(raw json.RawMessage) (*collectionRules, error) {
	var node map[string]json.RawMessage
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	collection := &collectionRules{
		actions: map[string]*Value{},
		props:   map[string]map[string]*Value{},
		records: map[string]*recordRules{},
	}
	for key, value := range node {
		switch {
		case strings.HasPrefix(key, "."):
			compiled, err := compileValue(value)
			if err != nil {
				return nil, fmt.Errorf("action %q: %w", key, err)
			}
			if compiled != nil {
				collection.actions[key] = compiled
			}
		case key == "*":
			props, err := compileProps(value)
			if err != nil {
				return nil, err
			}
			collection.props = props
		default:
			// record-id rules: actions and prop rules side by side
			var recordNode map[string]json.RawMessage
			if err := json.Unmarshal(value, &recordNode); err != nil {
				return nil, fmt.Errorf("record %q: %w", key, err)
			}
			record := &recordRules{actions: map[string]*Value{}, props: map[string]map[string]*Value{}}
			for rk, rv := range recordNode {
				if strings.HasPrefix(rk, ".") {
					compiled, err := compileValue(rv)
					if err != nil {
						return nil, fmt.Errorf("record %q action %q: %w", key, rk, err)
					}
					if compiled != nil {
						record.actions[rk] = compiled
					}
					continue
				}
				propActions, err := compileActions(rv)
				if err != nil {
					return nil, fmt.Errorf("record %q prop %q: %w", key, rk, err)
				}
				record.props[rk] = propActions
			}
			collection.records[key] = record
		}
	}
	return collection, nil
}

func compileProps(raw json.RawMessage) (map[string]map[string]*Value, error) {
	var node map[string]json.RawMessage
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, err
	}
	props := map[string]map[string]*Value{}
	for prop, value := range node {
		actions, err := compileActions(value)
		if err != nil {
			return nil, fmt.Errorf("prop %q: %w", prop, err)
		}
		props[prop] = actions
	}
	return props, nil
}

// Access describes one request for the engine to police.
type Access struct {
	Action     string
	Collection string
	User       models.Record // nil for guests
	Record     models.Record // existing record, nil for creates and lists
	Payload    models.Record // incoming body, nil for reads and deletes
	Admin      bool          // privileged override header present
}

// Authorize checks the action rule for the request and applies property
// rules: denied properties are deleted from the outgoing Record on read
// and from the incoming Payload on create/update. A failed role check
// while unauthenticated yields an authorization error, any other denial a
// credential error; the admin override suppresses denials but not
// redaction.
func (e *Engine) Authorize(a Access) error {
	rule, props := e.resolve(a.Action, a.Collection, a.Record.ID())

	allowed := true
	if rule != nil {
		var err error
		allowed, err = e.check(rule, a)
		if err != nil {
			return err
		}
	}
	if !allowed && !a.Admin {
		return utils.NewCredentialError("")
	}

	for prop, value := range props {
		if e.propAllowed(value, a) {
			continue
		}
		switch a.Action {
		case ActionCreate, ActionUpdate:
			delete(a.Payload, prop)
		case ActionRead:
			delete(a.Record, prop)
		}
	}
	return nil
}

// RedactList applies read property rules to every record of a list
// result. The action check for the list itself happens via Authorize with
// a nil record.
func (e *Engine) RedactList(collection string, user models.Record, records []models.Record, admin bool) {
	for _, record := range records {
		_, props := e.resolve(ActionRead, collection, record.ID())
		for prop, value := range props {
			access := Access{Action: ActionRead, Collection: collection, User: user, Record: record, Admin: admin}
			if !e.propAllowed(value, access) {
				delete(record, prop)
			}
		}
	}
}

// resolve walks the specificity chain and returns the winning action rule
// (nil means default-allow) plus the applicable property rules for the
// action.
func (e *Engine) resolve(action, collection, recordID string) (*Value, map[string]*Value) {
	rule := e.global[action]
	props := map[string]*Value{}

	c, ok := e.collections[collection]
	if !ok {
		return rule, props
	}
	if v, ok := c.actions[action]; ok {
		rule = v
	}
	props = propsForAction(c.props, action)

	if recordID != "" {
		if record, ok := c.records[recordID]; ok {
			if v, ok := record.actions[action]; ok {
				rule = v
			}
			if recordProps := propsForAction(record.props, action); len(recordProps) > 0 {
				props = recordProps
			}
		}
	}
	return rule, props
}

func propsForAction(props map[string]map[string]*Value, action string) map[string]*Value {
	result := map[string]*Value{}
	for prop, actions := range props {
		if v, ok := actions[action]; ok {
			result[prop] = v
		}
	}
	return result
}

func (e *Engine) check(rule *Value, a Access) (bool, error) {
	switch {
	case rule.isBool:
		return rule.allow, nil
	case rule.expr != nil:
		return Eval(rule.expr, a.User, a.Record), nil
	}
	return checkRoles(rule.roles, a)
}

func checkRoles(roles []string, a Access) (bool, error) {
	if contains(roles, "Guest") {
		return true, nil
	}
	if a.User == nil && !a.Admin {
		return false, utils.NewAuthorizationError("")
	}
	if contains(roles, "User") {
		return true, nil
	}
	if a.User != nil && contains(roles, "Owner") {
		return a.User.ID() == a.Record.OwnerID(), nil
	}
	return false, nil
}

// propAllowed evaluates a property rule without the role-check error
// semantics: an unauthenticated caller simply fails the rule.
func (e *Engine) propAllowed(rule *Value, a Access) bool {
	switch {
	case rule == nil:
		return true
	case rule.isBool:
		return rule.allow
	case rule.expr != nil:
		return Eval(rule.expr, a.User, a.Record)
	case contains(rule.roles, "Guest"):
		return true
	case a.User == nil:
		return a.Admin
	case contains(rule.roles, "User"):
		return true
	case contains(rule.roles, "Owner"):
		return a.User.ID() == a.Record.OwnerID()
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
