package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"

	"presencelog/internal/logutil"
)

// Bootstrap ensures the admin account exists at startup.
type Bootstrap struct {
	repo PartyRepo
	auth *UserAuth
	log  *slog.Logger
}

// NewBootstrap creates a new bootstrap handler.
func NewBootstrap(repo PartyRepo, auth *UserAuth, log *slog.Logger) *Bootstrap {
	return &Bootstrap{
		repo: repo,
		auth: auth,
		log:  logutil.NoopIfNil(log),
	}
}

// EnsureAdmin creates the admin user if it does not exist. When no
// password is configured, one is generated and logged once so the
// operator can sign in on a fresh deployment.
func (b *Bootstrap) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := b.repo.GetByUsername(ctx, username)
	if err == nil {
		b.log.Debug("admin user already exists", "username", username)
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	generated := false
	if password == "" {
		password, err = randomPassword()
		if err != nil {
			return err
		}
		generated = true
	}

	hash, err := b.auth.HashPassword(password)
	if err != nil {
		return err
	}

	user := &User{
		Username:     username,
		DisplayName:  "Administrator",
		PasswordHash: hash,
		Role:         RoleAdmin,
	}
	if err := b.repo.Create(ctx, user); err != nil {
		return err
	}

	if generated {
		b.log.Info("created admin user with generated password",
			"username", username, "password", password)
	} else {
		b.log.Info("created admin user", "username", username)
	}
	return nil
}

func randomPassword() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
