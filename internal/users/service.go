package users

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
)

// Store defines data access methods for users.
type Store interface {
	List(ctx context.Context, filters ListFilters) ([]User, error)
	Get(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, u User) (User, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
}

// Service handles user business logic.
type Service struct {
	store Store
}

// NewService builds Service instance.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns users visible to actor. Non-internal actors only see their own organization.
func (s *Service) List(ctx context.Context, actor *shared.Session, filters ListFilters) ([]User, error) {
	if err := authorize(actor, rbac.PermUsersRead); err != nil {
		return nil, err
	}
	if !actor.SeesAllOrganizations() {
		if filters.OrganizationID != "" && !actor.SameOrganization(filters.OrganizationID) {
			return nil, httpx.Errorf(httpx.ErrForbidden, "Cannot list users of another organization")
		}
		filters.OrganizationID = actor.OrganizationID
	}
	filters.Limit = shared.ClampLimit(filters.Limit, defaultListLimit, maxListLimit)
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	users, err := s.store.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// Get returns a single user. Users outside the actor's organization read as missing.
func (s *Service) Get(ctx context.Context, actor *shared.Session, id string) (User, error) {
	if err := authorize(actor, rbac.PermUsersRead); err != nil {
		return User{}, err
	}
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !actor.SeesAllOrganizations() && !actor.SameOrganization(u.OrganizationID) && u.ID != actor.UserID {
		return User{}, httpx.Errorf(httpx.ErrNotFound, "User not found")
	}
	return u, nil
}

// Lookup fetches a user without an actor, for background jobs.
func (s *Service) Lookup(ctx context.Context, id string) (User, error) {
	return s.store.Get(ctx, id)
}

// CreateInput describes a new account.
type CreateInput struct {
	Email            string    `validate:"required,email"`
	Name             string    `validate:"max=200"`
	Role             rbac.Role `validate:"required"`
	OrganizationID   string
	OrganizationRole string
	Password         string
}

// Create provisions an account. Used by operator tooling; there is no HTTP route for it.
func (s *Service) Create(ctx context.Context, in CreateInput) (User, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := httpx.Validate(in); err != nil {
		return User{}, err
	}
	if !in.Role.Valid() {
		return User{}, httpx.Errorf(httpx.ErrValidation, "role %q is not recognised", in.Role)
	}
	u := User{
		Email:            in.Email,
		Name:             strings.TrimSpace(in.Name),
		Role:             in.Role,
		OrganizationID:   in.OrganizationID,
		OrganizationRole: in.OrganizationRole,
		Active:           true,
	}
	if in.Password != "" {
		hash, err := HashPassword(in.Password)
		if err != nil {
			return User{}, err
		}
		u.PasswordHash = hash
	}
	return s.store.Create(ctx, u)
}

// SetPassword hashes and stores a new password for the account with email.
func (s *Service) SetPassword(ctx context.Context, email, password string) error {
	u, err := s.store.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.SetPasswordHash(ctx, u.ID, hash)
}

// HashPassword bcrypt-hashes password after a length check.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", httpx.Errorf(httpx.ErrValidation, "password must be at least %d characters", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func authorize(actor *shared.Session, perm string) error {
	if actor == nil {
		return httpx.Errorf(httpx.ErrUnauthorized, "Authentication required")
	}
	if !actor.Can(perm) {
		return httpx.Errorf(httpx.ErrForbidden, "Insufficient permissions")
	}
	return nil
}
