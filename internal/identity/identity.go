// Package identity carries the caller's id and role set.
//
// The wire format is two headers: a plain user id and an encoded role
// descriptor. Edge middleware decodes them once and stores an Identity in the
// request context; everything downstream reads the typed value.
package identity

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Header names used by clients and the server middleware
const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-User-Role"
)

// Role is a normalised role token
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleLabManager Role = "lab_manager"
	RoleTeacher    Role = "teacher"
	RoleStudent    Role = "student"
)

var elevatedRoles = []Role{RoleSuperAdmin, RoleAdmin, RoleLabManager}

// NormalizeRole trims, NFC-normalises and case-folds a raw token.
// Localised tokens keep their script; only case and composition change.
func NormalizeRole(raw string) Role {
	s := strings.TrimSpace(raw)
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return Role(s)
}

// RoleSet is an unordered set of roles
type RoleSet map[Role]struct{}

// NewRoleSet builds a set from raw tokens, dropping empty ones.
func NewRoleSet(tokens ...string) RoleSet {
	rs := make(RoleSet, len(tokens))
	for _, t := range tokens {
		r := NormalizeRole(t)
		if r == "" {
			continue
		}
		rs[r] = struct{}{}
	}
	return rs
}

func (rs RoleSet) Has(r Role) bool {
	_, ok := rs[r]
	return ok
}

// Slice returns the roles sorted, for stable encoding and logging.
func (rs RoleSet) Slice() []string {
	out := make([]string, 0, len(rs))
	for r := range rs {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return out
}

// HasElevatedRole reports whether roles intersect the elevated set.
func HasElevatedRole(roles RoleSet) bool {
	for _, r := range elevatedRoles {
		if roles.Has(r) {
			return true
		}
	}
	return false
}

// Identity is the authenticated caller
type Identity struct {
	UserID string
	Roles  RoleSet
}

func (id Identity) Elevated() bool {
	return HasElevatedRole(id.Roles)
}

type ctxKey struct{}

// NewContext returns ctx carrying id.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by NewContext.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
