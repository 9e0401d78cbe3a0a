package identity

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
)

// EncodeRoles renders a role set as a header-safe descriptor:
// base64(query-escaped JSON array).
func EncodeRoles(roles RoleSet) string {
	raw, _ := json.Marshal(roles.Slice())
	return base64.StdEncoding.EncodeToString([]byte(url.QueryEscape(string(raw))))
}

// DecodeRoles reverses EncodeRoles. The JSON payload may be a single role
// string or an array of role strings. ok is false on any decode failure.
func DecodeRoles(encoded string) (RoleSet, bool) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// tolerate clients that strip padding
		b, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, false
		}
	}
	text, err := url.QueryUnescape(string(b))
	if err != nil {
		return nil, false
	}

	var single string
	if err := json.Unmarshal([]byte(text), &single); err == nil {
		rs := NewRoleSet(single)
		if len(rs) == 0 {
			return nil, false
		}
		return rs, true
	}

	var list []string
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		return nil, false
	}
	return NewRoleSet(list...), true
}

// Decode recovers an Identity from the two carriers.
// Either carrier missing, or an undecodable role descriptor, yields ok == false.
func Decode(userID, encodedRoles string) (Identity, bool) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.TrimSpace(encodedRoles) == "" {
		return Identity{}, false
	}
	roles, ok := DecodeRoles(encodedRoles)
	if !ok {
		return Identity{}, false
	}
	return Identity{UserID: userID, Roles: roles}, true
}
