// Package authz answers "may this identity do that" from the capability table.
package authz

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PlanFox/app/models"
	"github.com/ManuelReschke/PlanFox/app/repository"
)

const bootstrapGrantor = "bootstrap:ADMIN_EMAILS"

// Authorizer checks capabilities granted to users.
type Authorizer struct {
	users repository.UserRepository
	caps  repository.CapabilityRepository
}

// New creates an Authorizer.
func New(users repository.UserRepository, caps repository.CapabilityRepository) *Authorizer {
	return &Authorizer{users: users, caps: caps}
}

// NewFromRepositories wires an Authorizer from the repository bundle.
func NewFromRepositories(repos *repository.Repositories) *Authorizer {
	return New(repos.User, repos.Capability)
}

// IsAuthorized reports whether userID holds capability. Anonymous identities
// never do.
func (a *Authorizer) IsAuthorized(ctx context.Context, userID uint, capability string) (bool, error) {
	capability = strings.TrimSpace(capability)
	if userID == 0 || capability == "" {
		return false, nil
	}
	return a.caps.Has(ctx, userID, capability)
}

// Capabilities lists what userID may do.
func (a *Authorizer) Capabilities(ctx context.Context, userID uint) ([]string, error) {
	if userID == 0 {
		return nil, nil
	}
	return a.caps.ListForUser(ctx, userID)
}

// SeedAdmins grants AdminCapabilities to every address in emails, creating
// local user rows when needed. It returns the number of new grants.
func (a *Authorizer) SeedAdmins(ctx context.Context, emails []string) (int, error) {
	granted := 0
	for _, email := range emails {
		email = models.NormalizeEmail(email)
		if email == "" {
			continue
		}
		user, err := a.users.FirstOrCreateByEmail(ctx, email, "")
		if err != nil {
			return granted, err
		}
		for _, capability := range models.AdminCapabilities {
			created, err := a.caps.Grant(ctx, user.ID, capability, bootstrapGrantor)
			if err != nil {
				return granted, err
			}
			if created {
				granted++
			}
		}
	}
	if granted > 0 {
		log.Infof("[Authz] Seeded %d admin capabilities", granted)
	}
	return granted, nil
}

// ParseEmailList splits a comma or whitespace separated allow-list.
func ParseEmailList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		e := models.NormalizeEmail(f)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
