// Package auth implements registration, login and opaque session tokens
// over the protected users and sessions collections.
package auth

import (
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"

	"mockbase/models"
	"mockbase/store"
	"mockbase/utils"
)

const (
	usersCollection    = "users"
	sessionsCollection = "sessions"
)

// Provider owns the credential lifecycle. Passwords are stored as bcrypt
// hashes; access tokens are derived deterministically from the session id
// with an HMAC, so logout revokes a token by deleting its session.
type Provider struct {
	protected *store.Store
	identity  string
	secret    string
	cost      int
}

// NewProvider wires the provider to protected storage. identity names the
// unique login field, typically "email". cost is the bcrypt work factor.
func NewProvider(protected *store.Store, identity, secret string, cost int) *Provider {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Provider{protected: protected, identity: identity, secret: secret, cost: cost}
}

// Register creates a user and an initial session. The response carries the
// stored user with password fields stripped plus an accessToken.
func (p *Provider) Register(body models.Record) (models.Record, error) {
	id, _ := body[p.identity].(string)
	password, _ := body["password"].(string)
	if id == "" || password == "" {
		return nil, utils.NewRequestError("Missing fields")
	}

	// a missing users collection just means nobody registered yet
	existing, _ := p.protected.Query(usersCollection, models.Record{p.identity: id})
	if len(existing) != 0 {
		return nil, utils.NewConflict(fmt.Sprintf("A user with the same %s already exists", p.identity))
	}

	user, err := p.CreateUser(body, password)
	if err != nil {
		return nil, err
	}
	return p.withSession(user)
}

// Login authenticates against the stored bcrypt hash. Any failure, be it
// an unknown identity or a wrong password, yields the same error so the
// response does not leak which part was wrong.
func (p *Provider) Login(body models.Record) (models.Record, error) {
	id, _ := body[p.identity].(string)
	password, _ := body["password"].(string)

	matched, _ := p.protected.Query(usersCollection, models.Record{p.identity: id})
	if len(matched) != 1 {
		return nil, utils.NewCredentialError("Login or password don't match")
	}
	user := matched[0]
	hashed, _ := user["hashedPassword"].(string)
	if bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) != nil {
		return nil, utils.NewCredentialError("Login or password don't match")
	}
	return p.withSession(user)
}

// Logout deletes the caller's session record. Calling it without an
// authenticated user fails; a user whose session is already gone is a
// no-op.
func (p *Provider) Logout(user models.Record) error {
	if user == nil {
		return utils.NewCredentialError("User session does not exist")
	}
	sessions, err := p.protected.Query(sessionsCollection, models.Record{"userId": user.ID()})
	if err != nil || len(sessions) == 0 {
		return nil
	}
	_, err = p.protected.Delete(sessionsCollection, sessions[0].ID())
	return err
}

// ResolveToken maps an access token back to its user. An unresolvable
// token is a hard failure for the whole request; callers treat an absent
// token as a guest and never get here.
func (p *Provider) ResolveToken(token string) (models.Record, error) {
	sessions, err := p.protected.Query(sessionsCollection, models.Record{"accessToken": token})
	if err == nil && len(sessions) > 0 {
		userID, _ := sessions[0]["userId"].(string)
		user, err := p.protected.Get(usersCollection, userID)
		if err == nil {
			log.Printf("INFO: authorized as %v", user[p.identity])
			return user, nil
		}
	}
	return nil, utils.NewCredentialError("Invalid access token")
}

// CreateUser stores a user record with a bcrypt hashedPassword, keeping
// any extra profile fields from body. Also used to seed demo users at
// boot.
func (p *Provider) CreateUser(body models.Record, password string) (models.Record, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, err
	}
	user := body.Copy()
	delete(user, "password")
	user["hashedPassword"] = string(hashed)
	return p.protected.Add(usersCollection, user), nil
}

// SeedUser stores a user under a fixed id so seed data can reference it as
// an owner. Only called at boot.
func (p *Provider) SeedUser(id string, profile models.Record, password string) (models.Record, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return nil, err
	}
	user := profile.Copy()
	delete(user, "password")
	user["hashedPassword"] = string(hashed)
	return p.protected.Place(usersCollection, id, user), nil
}

// withSession opens a session for the user and returns the sanitized user
// with the accessToken attached.
func (p *Provider) withSession(user models.Record) (models.Record, error) {
	session := p.protected.Add(sessionsCollection, models.Record{"userId": user.ID()})
	token := utils.HashToken(session.ID(), p.secret)
	if _, err := p.protected.Merge(sessionsCollection, session.ID(), models.Record{"accessToken": token}); err != nil {
		return nil, err
	}

	result := Sanitize(user)
	result["accessToken"] = token
	return result, nil
}

// Sanitize strips password fields from a user record before it leaves the
// server.
func Sanitize(user models.Record) models.Record {
	result := user.Copy()
	delete(result, "password")
	delete(result, "hashedPassword")
	return result
}
