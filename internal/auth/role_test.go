package auth

import (
	"encoding/json"
	"testing"
)

func TestParseRole(t *testing.T) {
	for _, r := range Roles {
		got, err := ParseRole(" " + r.String() + " ")
		if err != nil || got != r {
			t.Fatalf("ParseRole(%q) = %v, %v", r.String(), got, err)
		}
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if Role(0).Valid() || Role(9).Valid() {
		t.Fatal("out-of-range roles must be invalid")
	}
}

func TestRoleJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		Role Role `json:"role"`
	}{RoleAssistant})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"role":"assistant"}` {
		t.Fatalf("unexpected json %s", raw)
	}
	var out struct {
		Role Role `json:"role"`
	}
	if err := json.Unmarshal([]byte(`{"role":"root"}`), &out); err == nil {
		t.Fatal("expected error for unknown role name")
	}
}

func TestRoleIn(t *testing.T) {
	if !RoleLawyer.In(RoleAdmin, RoleLawyer) {
		t.Fatal("lawyer should be allowed")
	}
	if RoleAssistant.In(RoleAdmin, RoleLawyer) {
		t.Fatal("assistant should not be allowed")
	}
	if RoleAdmin.In() {
		t.Fatal("empty allow-list admits nobody")
	}
}

func TestHasher(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "secret1" {
		t.Fatal("hash must not equal the password")
	}
	if !h.Verify(hash, "secret1") {
		t.Fatal("expected match")
	}
	if h.Verify(hash, "secret2") || h.Verify("", "secret1") || h.Verify("garbage", "secret1") {
		t.Fatal("unexpected match")
	}
	if _, err := h.Hash(""); err == nil {
		t.Fatal("expected error for empty password")
	}
}
