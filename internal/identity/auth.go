package identity

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// UserAuth verifies local credentials. The bcrypt cost is fixed at
// construction so tests can dial it down without touching handlers.
type UserAuth struct {
	cost int
}

// NewUserAuth creates a UserAuth. Costs below bcrypt.MinCost fall back
// to bcrypt.DefaultCost; deployments should use 10 or higher.
func NewUserAuth(cost int) *UserAuth {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &UserAuth{cost: cost}
}

// HashPassword derives the stored bcrypt hash for a password.
func (a *UserAuth) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	return string(hash), err
}

// VerifyPassword compares a password against its stored hash. Any
// mismatch collapses to ErrInvalidPassword so callers cannot leak the
// underlying bcrypt failure mode.
func (a *UserAuth) VerifyPassword(hash, password string) error {
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrInvalidPassword
	}
	return nil
}

// Authenticate resolves the username and checks the password, returning
// the user on success.
func (a *UserAuth) Authenticate(ctx context.Context, repo PartyRepo, username, password string) (*User, error) {
	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := a.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}
	return user, nil
}
