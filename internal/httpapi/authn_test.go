package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lawdesk.org/internal/apperr"
	"lawdesk.org/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func withPrincipal(r *http.Request, role auth.Role) *http.Request {
	return r.WithContext(auth.ContextWithPrincipal(r.Context(), auth.Principal{ID: "user-1", Role: role}))
}

func TestRequireRoleAllowsMatchingRole(t *testing.T) {
	handler := RequireRole(auth.RoleAdmin, auth.RoleLawyer)(okHandler())

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/internal", nil), auth.RoleLawyer)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequireRoleRejectsMissingRole(t *testing.T) {
	handler := RequireRole(auth.RoleAdmin)(okHandler())

	req := withPrincipal(httptest.NewRequest(http.MethodGet, "/internal", nil), auth.RoleAssistant)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
	var body struct {
		Success       bool     `json:"success"`
		Code          string   `json:"code"`
		RequiredRoles []string `json:"required_roles"`
		ActualRole    string   `json:"actual_role"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Code != "forbidden" || body.ActualRole != "assistant" {
		t.Fatalf("unexpected body %+v", body)
	}
	if len(body.RequiredRoles) != 1 || body.RequiredRoles[0] != "admin" {
		t.Fatalf("required_roles = %v", body.RequiredRoles)
	}
}

func TestRequireRoleRejectsMissingUser(t *testing.T) {
	handler := RequireRole(auth.RoleAdmin)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
	var body map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body["code"] != "not_authenticated" {
		t.Fatalf("code = %v", body["code"])
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		code   string
	}{
		{header: "", code: "missing_credentials"},
		{header: "Basic dXNlcjpwYXNz", code: "malformed_credentials"},
		{header: "Bearer ", code: "malformed_credentials"},
		{header: "Bearer a b", code: "malformed_credentials"},
		{header: "bearer abc.def", want: "abc.def"},
		{header: "  Bearer xyz  ", want: "xyz"},
	}
	for _, tc := range cases {
		got, err := extractBearerToken(tc.header)
		if tc.code != "" {
			e, ok := apperr.As(err)
			if !ok || e.Code != tc.code {
				t.Fatalf("%q: got %v, want code %q", tc.header, err, tc.code)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%q: got %q, %v", tc.header, got, err)
		}
	}
}
