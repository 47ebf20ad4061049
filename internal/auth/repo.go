package auth

import (
	"context"

	"github.com/fieldforce/fieldforce/internal/users"
)

// Repository defines the account lookups login needs. users.Repository satisfies it.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
}
