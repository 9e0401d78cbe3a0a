// Package routing picks the backend route family for a resource.
package routing

import (
	"path"
	"strings"

	"github.com/Async-Ng/ElecLab-sub001/internal/identity"
)

// Route family segments
const (
	ScopeElevated   = "admin"
	ScopeRestricted = "user"
)

// DefaultBasePath is the API prefix served by cmd/eleclab
const DefaultBasePath = "/api/v1"

// Router resolves route prefixes under a base path
type Router struct {
	BasePath string
}

// New returns a Router rooted at basePath (DefaultBasePath when empty).
func New(basePath string) Router {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	return Router{BasePath: basePath}
}

// Scope returns the route family segment for roles.
// forceRestricted narrows an elevated caller to their own records.
func Scope(roles identity.RoleSet, forceRestricted bool) string {
	if forceRestricted {
		return ScopeRestricted
	}
	if identity.HasElevatedRole(roles) {
		return ScopeElevated
	}
	return ScopeRestricted
}

// Resolve returns the route prefix serving resource for roles,
// e.g. /api/v1/admin/requests.
func (r Router) Resolve(resource string, roles identity.RoleSet, forceRestricted bool) string {
	base := r.BasePath
	if base == "" {
		base = DefaultBasePath
	}
	return path.Join("/", base, Scope(roles, forceRestricted), strings.Trim(resource, "/"))
}

// Resolve uses the default base path.
func Resolve(resource string, roles identity.RoleSet, forceRestricted bool) string {
	return Router{}.Resolve(resource, roles, forceRestricted)
}
