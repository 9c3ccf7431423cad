// Package seed provisions the permission catalog, the system roles and the
// allowed email domains from a YAML document.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/pkg/idx"
	"github.com/goccy/go-yaml"
)

//go:embed default.yaml
var defaultCatalog []byte

type Permission struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
}

type Role struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type Catalog struct {
	Permissions    []Permission `yaml:"permissions"`
	Roles          []Role       `yaml:"roles"`
	AllowedDomains []string     `yaml:"allowed_domains"`
}

// Default returns the embedded catalog.
func Default() (Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// LoadFile reads a catalog from path, or the embedded default when path is
// empty.
func LoadFile(path string) (Catalog, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a catalog. Unknown keys are rejected.
func Load(r io.Reader) (Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Catalog{}, fmt.Errorf("failed to read seed catalog: %w", err)
	}

	var c Catalog
	if err := yaml.UnmarshalWithOptions(data, &c, yaml.DisallowUnknownField()); err != nil {
		return Catalog{}, fmt.Errorf("failed to parse seed catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks that roles are system roles and reference known
// permissions.
func (c Catalog) Validate() error {
	var errs []error

	known := make(map[string]bool, len(c.Permissions))
	for i, p := range c.Permissions {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("permission %d: name is required", i))
			continue
		}
		if known[p.Name] {
			errs = append(errs, fmt.Errorf("permission %q: duplicate", p.Name))
		}
		known[p.Name] = true
	}

	seenRoles := make(map[string]bool, len(c.Roles))
	for _, r := range c.Roles {
		if !domain.SystemRole(r.Name).Valid() {
			errs = append(errs, fmt.Errorf("role %q: not a system role", r.Name))
			continue
		}
		if seenRoles[r.Name] {
			errs = append(errs, fmt.Errorf("role %q: duplicate", r.Name))
		}
		seenRoles[r.Name] = true

		for _, p := range r.Permissions {
			if !known[p] {
				errs = append(errs, fmt.Errorf("role %q: unknown permission %q", r.Name, p))
			}
		}
	}

	for _, d := range c.AllowedDomains {
		if strings.TrimSpace(d) == "" || strings.Contains(d, "@") {
			errs = append(errs, fmt.Errorf("allowed domain %q: invalid", d))
		}
	}

	return errors.Join(errs...)
}

// Apply upserts the catalog in one transaction. Every system role exists
// afterwards, and the permission set of each listed role is replaced.
func Apply(ctx context.Context, st store.Store, c Catalog, now time.Time) error {
	now = now.UTC()

	return st.WithTx(ctx, func(tx store.Tx) error {
		permIDs := make(map[string]string, len(c.Permissions))
		for _, p := range c.Permissions {
			id, err := upsertPermission(ctx, tx, p, now)
			if err != nil {
				return err
			}
			permIDs[p.Name] = id
		}

		defs := make(map[string]Role, len(c.Roles))
		for _, r := range c.Roles {
			defs[r.Name] = r
		}

		for _, name := range domain.SystemRoles {
			def, listed := defs[string(name)]
			if !listed {
				def = Role{Name: string(name), DisplayName: strings.ToUpper(string(name[:1])) + string(name[1:])}
			}

			roleID, err := upsertSystemRole(ctx, tx, def, now)
			if err != nil {
				return err
			}
			if !listed {
				continue
			}

			if err := tx.Roles().ClearRolePermissions(ctx, roleID); err != nil {
				return fmt.Errorf("failed to clear permissions of %s: %w", name, err)
			}
			for _, p := range def.Permissions {
				err := tx.Roles().AddRolePermission(ctx, domain.RolePermission{
					RoleID:       roleID,
					PermissionID: permIDs[p],
					CreatedAt:    now,
				})
				if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
					return fmt.Errorf("failed to grant %s to %s: %w", p, name, err)
				}
			}
		}

		for _, d := range c.AllowedDomains {
			err := tx.AllowedDomains().AddDomain(ctx, domain.AllowedDomain{
				ID:        idx.New().String(),
				Domain:    strings.ToLower(strings.TrimSpace(d)),
				IsActive:  true,
				CreatedAt: now,
			})
			if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
				return fmt.Errorf("failed to add domain %s: %w", d, err)
			}
		}
		return nil
	})
}

func upsertPermission(ctx context.Context, tx store.Tx, p Permission, now time.Time) (string, error) {
	display := p.DisplayName
	if display == "" {
		display = p.Name
	}

	existing, err := tx.Permissions().GetPermissionByName(ctx, p.Name)
	switch {
	case err == nil:
		existing.DisplayName = display
		existing.Category = p.Category
		existing.Description = p.Description
		if err := tx.Permissions().UpdatePermission(ctx, existing); err != nil {
			return "", fmt.Errorf("failed to update permission %s: %w", p.Name, err)
		}
		return existing.ID, nil
	case !errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("failed to load permission %s: %w", p.Name, err)
	}

	perm := domain.Permission{
		ID:          idx.New().String(),
		Name:        p.Name,
		DisplayName: display,
		Category:    p.Category,
		Description: p.Description,
		CreatedAt:   now,
	}
	if err := tx.Permissions().CreatePermission(ctx, perm); err != nil {
		return "", fmt.Errorf("failed to create permission %s: %w", p.Name, err)
	}
	return perm.ID, nil
}

func upsertSystemRole(ctx context.Context, tx store.Tx, def Role, now time.Time) (string, error) {
	display := def.DisplayName
	if display == "" {
		display = def.Name
	}

	existing, err := tx.Roles().GetRoleByName(ctx, def.Name)
	switch {
	case err == nil:
		if !existing.IsSystemRole {
			return "", fmt.Errorf("role %s exists as a custom role", def.Name)
		}
		existing.DisplayName = display
		existing.Description = def.Description
		existing.IsActive = true
		existing.UpdatedAt = now
		if err := tx.Roles().UpdateRole(ctx, existing); err != nil {
			return "", fmt.Errorf("failed to update role %s: %w", def.Name, err)
		}
		return existing.ID, nil
	case !errors.Is(err, store.ErrNotFound):
		return "", fmt.Errorf("failed to load role %s: %w", def.Name, err)
	}

	role := domain.Role{
		ID:           idx.New().String(),
		Name:         def.Name,
		DisplayName:  display,
		Description:  def.Description,
		IsSystemRole: true,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.Roles().CreateRole(ctx, role); err != nil {
		return "", fmt.Errorf("failed to create role %s: %w", def.Name, err)
	}
	return role.ID, nil
}
