package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"

	"github.com/bher20/powerdash/internal/storage"
)

// Roles a token can carry.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Objects and actions checked by the API.
const (
	ObjSchedules = "schedules"
	ObjSettings  = "settings"
	ActRead      = "read"
	ActWrite     = "write"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrUnknownRole  = errors.New("auth: unknown role")
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.obj == p.obj || p.obj == "*") && (r.act == p.act || p.act == "*")
`

var defaultPolicies = [][]string{
	{RoleAdmin, "*", "*"},
	{RoleEditor, ObjSchedules, ActRead},
	{RoleEditor, ObjSchedules, ActWrite},
	{RoleViewer, ObjSchedules, ActRead},
	{RoleViewer, ObjSettings, ActRead},
}

// Service issues API tokens and checks role permissions. Policies live in
// storage through the casbin Adapter.
type Service struct {
	storage  storage.Storage
	enforcer *casbin.Enforcer
	now      func() time.Time
}

func NewService(s storage.Storage) (*Service, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("auth: model: %w", err)
	}
	e, err := casbin.NewEnforcer(m, NewAdapter(s))
	if err != nil {
		return nil, fmt.Errorf("auth: enforcer: %w", err)
	}
	// AddPolicy is a no-op for rules already loaded from storage.
	for _, p := range defaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("auth: seed policy %v: %w", p, err)
		}
	}
	return &Service{storage: s, enforcer: e, now: time.Now}, nil
}

func validRole(role string) bool {
	return role == RoleAdmin || role == RoleEditor || role == RoleViewer
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CreateToken issues a new random token. The raw value is only returned
// here; storage keeps its sha256.
func (s *Service) CreateToken(ctx context.Context, name, role string, expiresAt *time.Time) (*storage.Token, string, error) {
	raw := uuid.NewString() + uuid.NewString()
	t, err := s.storeToken(ctx, raw, name, role, expiresAt)
	if err != nil {
		return nil, "", err
	}
	return t, raw, nil
}

// EnsureToken registers raw as a token unless it already exists. It is
// used to seed the admin token from configuration.
func (s *Service) EnsureToken(ctx context.Context, raw, name, role string) error {
	existing, err := s.storage.GetTokenByHash(ctx, hashToken(raw))
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	_, err = s.storeToken(ctx, raw, name, role, nil)
	return err
}

func (s *Service) storeToken(ctx context.Context, raw, name, role string, expiresAt *time.Time) (*storage.Token, error) {
	if !validRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	t := storage.Token{
		ID:        uuid.NewString(),
		Name:      name,
		TokenHash: hashToken(raw),
		Role:      role,
		CreatedAt: s.now().UTC(),
		ExpiresAt: expiresAt,
	}
	if err := s.storage.CreateToken(ctx, t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ValidateToken resolves a raw bearer token and records its use.
func (s *Service) ValidateToken(ctx context.Context, raw string) (*storage.Token, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	t, err := s.storage.GetTokenByHash(ctx, hashToken(raw))
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrInvalidToken
	}
	now := s.now()
	if t.ExpiresAt != nil && t.ExpiresAt.Before(now) {
		return nil, ErrTokenExpired
	}
	_ = s.storage.UpdateTokenLastUsed(ctx, t.ID, now.UTC())
	return t, nil
}

// Enforce reports whether role may perform act on obj.
func (s *Service) Enforce(role, obj, act string) (bool, error) {
	return s.enforcer.Enforce(role, obj, act)
}

// Grant adds a policy for role and persists it.
func (s *Service) Grant(role, obj, act string) error {
	_, err := s.enforcer.AddPolicy(role, obj, act)
	return err
}

// Revoke removes a policy for role.
func (s *Service) Revoke(role, obj, act string) error {
	_, err := s.enforcer.RemovePolicy(role, obj, act)
	return err
}
