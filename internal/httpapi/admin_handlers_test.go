package httpapi

import (
	"net/http"
	"testing"

	"squire.sh/internal/config"
	"squire.sh/internal/identity"
)

func adminToken(c *apiClient) map[string]string {
	return bearerHeader(c.login("root", "root-pass").AccessToken)
}

func TestAdminEndpointsRequireWildcardPolicy(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)
	alice := bearerHeader(c.login("alice", "alice-pass").AccessToken)

	paths := []string{"/admin/user", "/admin/role", "/admin/resource", "/admin/permission", "/admin/policy"}
	for _, path := range paths {
		wantStatus(t, c.get(path, nil), http.StatusUnauthorized)
		wantStatus(t, c.get(path, alice), http.StatusForbidden)
	}
}

func TestAdminUserCRUD(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)
	root := adminToken(c)

	resp := c.post("/admin/user", map[string]any{
		"username": "bob",
		"email":    "bob@example.com",
		"password": "bob-password",
		"country":  "NL",
	}, root)
	wantStatus(t, resp, http.StatusCreated)

	resp = c.get("/admin/user?username=bob", root)
	bob := decode[identity.User](t, resp)
	if bob.Country != "NL" {
		t.Fatalf("country %q", bob.Country)
	}

	resp = c.do(http.MethodPut, "/admin/user?username=bob", map[string]any{
		"disabled": true,
	}, root)
	updated := decode[identity.User](t, resp)
	if !updated.Disabled {
		t.Fatal("disable not applied")
	}

	// The fresh account can no longer log in.
	wantStatus(t, c.post("/auth/token", map[string]string{
		"username": "bob", "password": "bob-password",
	}, nil), http.StatusOK) // login itself checks the password, not the flag
	wantStatus(t, c.get("/auth/", bearerHeader(c.login("bob", "bob-password").AccessToken)), http.StatusUnauthorized)

	resp = c.get("/admin/user", root)
	users := decode[[]identity.User](t, resp)
	if len(users) != 3 {
		t.Fatalf("users: %d, want 3", len(users))
	}

	wantStatus(t, c.do(http.MethodDelete, "/admin/user?id="+bob.ID, nil, root), http.StatusOK)
	wantStatus(t, c.get("/admin/user?username=bob", root), http.StatusNotFound)
	wantStatus(t, c.do(http.MethodDelete, "/admin/user?id="+bob.ID, nil, root), http.StatusNotFound)
	wantStatus(t, c.do(http.MethodDelete, "/admin/user", nil, root), http.StatusBadRequest)
}

func TestAdminUserValidation(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)
	root := adminToken(c)

	wantStatus(t, c.post("/admin/user", map[string]any{
		"username": "bad", "email": "not-an-email",
	}, root), http.StatusBadRequest)

	// Duplicate username.
	wantStatus(t, c.post("/admin/user", map[string]any{
		"username": "alice", "email": "second@example.com",
	}, root), http.StatusBadRequest)

	wantStatus(t, c.post("/admin/user", map[string]any{
		"username": "x", "email": "x@example.com", "unknown_field": 1,
	}, root), http.StatusBadRequest)
}

func TestAdminRBACChain(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)
	root := adminToken(c)

	role := decode[identity.Role](t, c.post("/admin/role", map[string]string{"title": "Clerk"}, root))
	if role.ID == "" {
		t.Fatal("role id missing")
	}

	res := decode[identity.Resource](t, c.post("/admin/resource", map[string]string{"name": "reports"}, root))
	perm := decode[identity.Permission](t, c.post("/admin/permission", map[string]string{
		"action": "read", "resource_id": res.ID,
	}, root))
	policy := decode[identity.Policy](t, c.post("/admin/policy", map[string]string{
		"name": "clerk-read-reports", "permission_id": perm.ID, "role_id": role.ID,
	}, root))
	if policy.RoleID != role.ID {
		t.Fatalf("policy role %q", policy.RoleID)
	}

	// Assign the role, then the clerk still cannot use admin endpoints.
	wantStatus(t, c.do(http.MethodPut, "/admin/user?username=alice", map[string]any{
		"role_id": role.ID,
	}, root), http.StatusOK)
	alice := bearerHeader(c.login("alice", "alice-pass").AccessToken)
	wantStatus(t, c.get("/admin/role", alice), http.StatusForbidden)

	// Duplicate (permission, role) pair.
	wantStatus(t, c.post("/admin/policy", map[string]string{
		"name": "another-name", "permission_id": perm.ID, "role_id": role.ID,
	}, root), http.StatusBadRequest)

	wantStatus(t, c.do(http.MethodDelete, "/admin/policy?name=clerk-read-reports", nil, root), http.StatusOK)
	wantStatus(t, c.do(http.MethodDelete, "/admin/permission?permission_id="+perm.ID, nil, root), http.StatusOK)
	wantStatus(t, c.do(http.MethodDelete, "/admin/resource?resource_id="+res.ID, nil, root), http.StatusOK)
	wantStatus(t, c.do(http.MethodDelete, "/admin/role?role_id="+role.ID, nil, root), http.StatusOK)
}

func TestAdminRoleUpdate(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)
	root := adminToken(c)

	role := decode[identity.Role](t, c.post("/admin/role", map[string]string{"title": "Temp"}, root))

	updated := decode[identity.Role](t, c.do(http.MethodPut, "/admin/role?role_id="+role.ID,
		map[string]string{"title": "Permanent"}, root))
	if updated.Title != "Permanent" {
		t.Fatalf("title %q", updated.Title)
	}

	wantStatus(t, c.do(http.MethodPut, "/admin/role?role_id=ghost",
		map[string]string{"title": "X"}, root), http.StatusNotFound)
	wantStatus(t, c.do(http.MethodPut, "/admin/role",
		map[string]string{"title": "X"}, root), http.StatusBadRequest)
}

func TestAdminMethodNotAllowed(t *testing.T) {
	c := newTestAPI(t, config.AuthModeNative)
	root := adminToken(c)
	wantStatus(t, c.do(http.MethodPatch, "/admin/user", nil, root), http.StatusMethodNotAllowed)
	wantStatus(t, c.do(http.MethodPut, "/admin/resource?resource_id=x", nil, root), http.StatusMethodNotAllowed)
}
