// Package auth resolves the client identity consumed by uploads and
// subscriptions: anonymous principals or principals carried in a
// signed token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleConductor may bulk-load questions; RoleStudent may only take exams.
const (
	RoleConductor = "conductor"
	RoleStudent   = "student"
)

// ErrInvalidToken is returned when a presented token fails verification.
var ErrInvalidToken = errors.New("invalid auth token")

// Principal is a resolved identity.
type Principal struct {
	UID  string
	Role string
}

// CanUpload reports whether the principal passes the conductor gate.
func (p Principal) CanUpload() bool {
	return p.Role == RoleConductor
}

// Provider is the identity collaborator interface. Sign-in is a
// one-shot operation that must complete before any persistence or
// subscription call needing an authenticated principal; on failure the
// consumer observes a degraded state, there is no automatic retry.
type Provider interface {
	SignInAnonymous(ctx context.Context) (Principal, error)
	SignInWithToken(ctx context.Context, token string) (Principal, error)
	// OnAuthStateChange registers a listener notified on every sign-in
	// resolution. The returned func unregisters it.
	OnAuthStateChange(fn func(Principal, error)) func()
}

// JWTProvider verifies HS256 tokens against a shared secret and mints
// anonymous principals. The secret is an explicit constructor
// parameter, never ambient state.
type JWTProvider struct {
	secret []byte

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(Principal, error)
}

func NewJWTProvider(secret []byte) *JWTProvider {
	return &JWTProvider{
		secret:    secret,
		listeners: make(map[int]func(Principal, error)),
	}
}

func (p *JWTProvider) SignInAnonymous(_ context.Context) (Principal, error) {
	principal := Principal{UID: "anon-" + uuid.NewString(), Role: RoleStudent}
	p.notify(principal, nil)
	return principal, nil
}

func (p *JWTProvider) SignInWithToken(_ context.Context, token string) (Principal, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid {
		p.notify(Principal{}, ErrInvalidToken)
		return Principal{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		p.notify(Principal{}, ErrInvalidToken)
		return Principal{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		p.notify(Principal{}, ErrInvalidToken)
		return Principal{}, ErrInvalidToken
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = RoleStudent
	}

	principal := Principal{UID: sub, Role: role}
	p.notify(principal, nil)
	return principal, nil
}

func (p *JWTProvider) OnAuthStateChange(fn func(Principal, error)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *JWTProvider) notify(principal Principal, err error) {
	p.mu.Lock()
	fns := make([]func(Principal, error), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(principal, err)
	}
}
