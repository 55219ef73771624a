package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
	"lawdesk.org/internal/office"
)

func TestUserStoreRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	users := New().Users()

	first := auth.User{ID: "u1", DNI: "100", Email: "a@example.com", Role: auth.RoleLawyer}
	if err := users.Create(ctx, &first); err != nil {
		t.Fatalf("create: %v", err)
	}
	dupEmail := auth.User{ID: "u2", DNI: "101", Email: "a@example.com", Role: auth.RoleLawyer}
	if err := users.Create(ctx, &dupEmail); !errors.Is(err, auth.ErrEmailTaken) {
		t.Fatalf("expected email_taken, got %v", err)
	}
	dupDNI := auth.User{ID: "u3", DNI: "100", Role: auth.RoleAssistant}
	if err := users.Create(ctx, &dupDNI); !errors.Is(err, auth.ErrDNITaken) {
		t.Fatalf("expected dni_taken, got %v", err)
	}

	// updating self with unchanged keys is not a conflict
	first.Name = "Ana"
	if err := users.Update(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestResetTokenConsumedOnce(t *testing.T) {
	ctx := context.Background()
	resets := New().ResetTokens()
	tok := auth.ResetToken{ID: "r1", UserID: "u1", TokenHash: "h", ExpiresAt: time.Now().Add(time.Hour)}
	if err := resets.Save(ctx, tok); err != nil {
		t.Fatalf("save: %v", err)
	}
	if found, err := resets.Find(ctx, "r1"); err != nil || found.TokenHash != "h" {
		t.Fatalf("find: %+v, %v", found, err)
	}
	got, err := resets.Consume(ctx, "r1")
	if err != nil || got.UserID != "u1" {
		t.Fatalf("consume: %+v, %v", got, err)
	}
	if _, err := resets.Consume(ctx, "r1"); err == nil {
		t.Fatalf("second consume should fail")
	}
	if _, err := resets.Find(ctx, "r1"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("find after consume: %v", err)
	}
}

func TestAuditQueryNewestFirst(t *testing.T) {
	ctx := context.Background()
	st := New().Audit()
	for i, action := range []audit.Action{audit.ActionLogin, audit.ActionCreate, audit.ActionLogout} {
		rec := audit.Record{ID: string(rune('a' + i)), ActorID: "u1", Action: action}
		if err := st.Append(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recs, total, err := st.Query(ctx, audit.Filter{ActorID: "u1"}, 0, 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 3 || len(recs) != 2 {
		t.Fatalf("total=%d len=%d", total, len(recs))
	}
	if recs[0].Action != audit.ActionLogout || recs[1].Action != audit.ActionCreate {
		t.Fatalf("unexpected order: %v, %v", recs[0].Action, recs[1].Action)
	}

	recs, total, _ = st.Query(ctx, audit.Filter{Action: audit.ActionLogin}, 0, 10)
	if total != 1 || recs[0].ID != "a" {
		t.Fatalf("filter by action: %+v", recs)
	}
}

func TestCaseNumberUnique(t *testing.T) {
	ctx := context.Background()
	cases := New().Cases()
	a := office.Case{ID: "c1", Number: "EXP-1", ClientID: "cl1", Status: office.CaseOpen}
	if err := cases.Create(ctx, &a); err != nil {
		t.Fatalf("create: %v", err)
	}
	b := office.Case{ID: "c2", Number: "EXP-1", ClientID: "cl1", Status: office.CaseOpen}
	if err := cases.Create(ctx, &b); !errors.Is(err, office.ErrCaseNumberTaken) {
		t.Fatalf("expected case_number_taken, got %v", err)
	}

	list, total, err := cases.List(ctx, office.CaseFilter{ClientID: "cl1"})
	if err != nil || total != 1 || len(list) != 1 {
		t.Fatalf("list: %v total=%d", err, total)
	}
}
