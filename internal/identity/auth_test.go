package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"presencelog/internal/identity"
)

func TestHashAndVerifyPassword(t *testing.T) {
	auth := identity.NewUserAuth(4) // low cost for test speed

	hash, err := auth.HashPassword("secret123")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "secret123" {
		t.Fatal("password stored in plaintext")
	}

	if err := auth.VerifyPassword(hash, "secret123"); err != nil {
		t.Errorf("VerifyPassword rejected correct password: %v", err)
	}
	if err := auth.VerifyPassword(hash, "wrong"); !errors.Is(err, identity.ErrInvalidPassword) {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewMemoryPartyRepo()
	auth := identity.NewUserAuth(4)

	hash, err := auth.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	err = repo.Create(ctx, &identity.User{
		Username:     "alice",
		PasswordHash: hash,
		Role:         identity.RoleUser,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	user, err := auth.Authenticate(ctx, repo, "alice", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if user.Username != "alice" || user.ID == "" {
		t.Errorf("user = %+v", user)
	}

	if _, err := auth.Authenticate(ctx, repo, "alice", "wrong"); !errors.Is(err, identity.ErrInvalidPassword) {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}
	if _, err := auth.Authenticate(ctx, repo, "bob", "hunter2"); !errors.Is(err, identity.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewMemorySessionRepo()

	sess, err := repo.Create(ctx, "user-1", time.Minute)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.Token == "" {
		t.Fatal("empty session token")
	}

	got, err := repo.Get(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID = %q", got.UserID)
	}

	if err := repo.Delete(ctx, sess.Token); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := repo.Get(ctx, sess.Token); !errors.Is(err, identity.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewMemorySessionRepo()

	sess, err := repo.Create(ctx, "user-1", -time.Minute)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := repo.Get(ctx, sess.Token); !errors.Is(err, identity.ErrSessionExpired) {
		t.Errorf("expected ErrSessionExpired, got %v", err)
	}

	n, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired = %d, want 1", n)
	}
}

func TestBootstrapEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewMemoryPartyRepo()
	auth := identity.NewUserAuth(4)
	boot := identity.NewBootstrap(repo, auth, nil)

	if err := boot.EnsureAdmin(ctx, "admin", "adminpass"); err != nil {
		t.Fatalf("EnsureAdmin failed: %v", err)
	}

	user, err := auth.Authenticate(ctx, repo, "admin", "adminpass")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !user.IsAdmin() {
		t.Errorf("role = %q, want admin", user.Role)
	}

	// Second run is a no-op.
	if err := boot.EnsureAdmin(ctx, "admin", "adminpass"); err != nil {
		t.Fatalf("second EnsureAdmin failed: %v", err)
	}
	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("got %d users, want 1", len(users))
	}
}

func TestBootstrapGeneratesPassword(t *testing.T) {
	ctx := context.Background()
	repo := identity.NewMemoryPartyRepo()
	boot := identity.NewBootstrap(repo, identity.NewUserAuth(4), nil)

	if err := boot.EnsureAdmin(ctx, "admin", ""); err != nil {
		t.Fatalf("EnsureAdmin failed: %v", err)
	}
	user, err := repo.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetByUsername failed: %v", err)
	}
	if user.PasswordHash == "" {
		t.Error("generated admin has no password hash")
	}
}
