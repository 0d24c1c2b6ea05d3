package requestctx

import (
	"context"
	"testing"
)

func TestIdentityFromContextRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{UserID: " user-42 ", Name: "Ana", IsAdmin: true})
	got, ok := IdentityFromContext(ctx)
	if !ok {
		t.Fatal("expected identity in context")
	}
	if got.UserID != "user-42" || got.Name != "Ana" || !got.IsAdmin {
		t.Fatalf("IdentityFromContext = %+v", got)
	}
	if id := UserIDFromContext(ctx); id != "user-42" {
		t.Fatalf("UserIDFromContext = %q, want %q", id, "user-42")
	}
}

func TestIdentityFromContextEmpty(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatal("expected no identity")
	}
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestIdentityFromContextNil(t *testing.T) {
	if _, ok := IdentityFromContext(nil); ok {
		t.Fatal("expected no identity for nil context")
	}
}

func TestWithIdentityNilContext(t *testing.T) {
	ctx := WithIdentity(nil, Identity{UserID: "user-99"})
	if ctx == nil {
		t.Fatalf("expected non-nil context")
	}
	if got := UserIDFromContext(ctx); got != "user-99" {
		t.Fatalf("UserIDFromContext = %q, want %q", got, "user-99")
	}
}

func TestWithIdentityIgnoresBlankUserID(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{UserID: "   ", Name: "ghost"})
	if _, ok := IdentityFromContext(ctx); ok {
		t.Fatal("expected blank identity to be ignored")
	}
}
