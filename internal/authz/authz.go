package authz

import (
	"context"
	"errors"

	"squire.sh/internal/identity"
)

// ErrForbidden indicates a failed policy check for an authenticated
// user.
var ErrForbidden = errors.New("authz: operation not permitted")

// Wildcard is the literal action and resource name that unrestricted
// policies are materialized as. There is no pattern matching at
// evaluation time: a role is only unrestricted if a ("*", "*")
// permission/policy pair has been seeded for it, and only such a
// literal row grants arbitrary pairs.
const Wildcard = "*"

// RequiredPolicy is one (action, resource) pair a caller must hold.
type RequiredPolicy struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
}

// AdminOnly is the conventional requirement list for administrative
// endpoints.
var AdminOnly = []RequiredPolicy{{Action: Wildcard, Resource: Wildcard}}

// Engine evaluates role policies against required (action, resource)
// pairs. It never caches store entities across requests.
type Engine struct {
	store identity.Store
}

func NewEngine(store identity.Store) *Engine {
	return &Engine{store: store}
}

// Authorize reports whether the user's role owns a policy whose
// permission matches the action and resource name exactly.
func (e *Engine) Authorize(ctx context.Context, user *identity.User, action, resource string) (bool, error) {
	if user == nil || user.RoleID == "" {
		return false, nil
	}
	targets, err := e.store.Policies().TargetsForRole(ctx, user.RoleID)
	if err != nil {
		return false, err
	}
	return matches(targets, action, resource), nil
}

// Require checks every required pair against the user's role policies.
// All pairs must pass; the first failing pair aborts the whole check
// with ErrForbidden.
func (e *Engine) Require(ctx context.Context, user *identity.User, required []RequiredPolicy) error {
	if len(required) == 0 {
		return nil
	}
	if user == nil || user.RoleID == "" {
		return ErrForbidden
	}
	targets, err := e.store.Policies().TargetsForRole(ctx, user.RoleID)
	if err != nil {
		return err
	}
	for _, req := range required {
		if !matches(targets, req.Action, req.Resource) {
			return ErrForbidden
		}
	}
	return nil
}

func matches(targets []identity.PolicyTarget, action, resource string) bool {
	for _, t := range targets {
		actionOK := t.Action == action || t.Action == Wildcard
		resourceOK := t.ResourceName == resource || t.ResourceName == Wildcard
		if actionOK && resourceOK {
			return true
		}
	}
	return false
}
