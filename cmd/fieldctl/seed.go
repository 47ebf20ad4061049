package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fieldforce/fieldforce/internal/audit"
	"github.com/fieldforce/fieldforce/internal/organizations"
	"github.com/fieldforce/fieldforce/internal/platform/httpx"
	"github.com/fieldforce/fieldforce/internal/rbac"
	"github.com/fieldforce/fieldforce/internal/shared"
	"github.com/fieldforce/fieldforce/internal/users"
)

// seedFile is the YAML document read by `fieldctl seed`.
type seedFile struct {
	Organizations []seedOrganization `yaml:"organizations"`
	Users         []seedUser         `yaml:"users"`
}

type seedOrganization struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Slug string `yaml:"slug"`
	Kind string `yaml:"kind"`
}

type seedUser struct {
	Email            string `yaml:"email"`
	Name             string `yaml:"name"`
	Role             string `yaml:"role"`
	Organization     string `yaml:"organization"`
	OrganizationRole string `yaml:"organizationRole"`
	Password         string `yaml:"password"`
}

const defaultSeed = `organizations:
  - id: 00000000-0000-0000-0000-000000000001
    name: Fieldforce
    slug: fieldforce
    kind: internal
users:
  - email: admin@fieldforce.local
    name: Administrator
    role: super_admin
    organization: 00000000-0000-0000-0000-000000000001
    password: change-me-now
`

func parseSeed(r io.Reader) (seedFile, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return seedFile{}, fmt.Errorf("parse seed: %w", err)
	}
	return f, nil
}

// seedResult counts what applySeed created and skipped.
type seedResult struct {
	Organizations, Users, Skipped int
}

// applySeed creates the seed rows. Rows that already exist are skipped.
func applySeed(ctx context.Context, orgs *organizations.Service, accounts *users.Service, f seedFile) (seedResult, error) {
	var res seedResult
	for _, o := range f.Organizations {
		_, err := orgs.Create(ctx, organizations.CreateInput{
			ID:   o.ID,
			Name: o.Name,
			Slug: o.Slug,
			Kind: organizations.Kind(o.Kind),
		})
		switch {
		case errors.Is(err, httpx.ErrDuplicate):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("organization %s: %w", o.Slug, err)
		default:
			res.Organizations++
		}
	}
	for _, u := range f.Users {
		_, err := accounts.Create(ctx, users.CreateInput{
			Email:            u.Email,
			Name:             u.Name,
			Role:             rbac.ParseRole(u.Role),
			OrganizationID:   u.Organization,
			OrganizationRole: u.OrganizationRole,
			Password:         u.Password,
		})
		switch {
		case errors.Is(err, httpx.ErrDuplicate):
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("user %s: %w", u.Email, err)
		default:
			res.Users++
		}
	}
	return res, nil
}

var seedFileFlag string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create organizations and accounts from a YAML file (defaults to a single super admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		var src io.Reader
		if seedFileFlag == "" {
			src = strings.NewReader(defaultSeed)
		} else {
			fh, err := os.Open(seedFileFlag)
			if err != nil {
				return err
			}
			defer fh.Close()
			src = fh
		}
		f, err := parseSeed(src)
		if err != nil {
			return err
		}

		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		recorder := audit.NewLogger(audit.NewRepository(e.pool), e.logger)
		orgs := organizations.NewService(organizations.NewRepository(e.pool), recorder, nil, shared.SideEffects{Logger: e.logger}, e.logger)
		res, err := applySeed(cmd.Context(), orgs, users.NewService(users.NewRepository(e.pool)), f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d organizations, %d users (%d already present)\n", res.Organizations, res.Users, res.Skipped)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFileFlag, "file", "f", "", "Seed YAML file")
}
