package security

import (
	"net/http"
	"strings"
)

// Roles
const (
	// RoleOperator may switch chains and write preferences.
	RoleOperator = "operator"
	// RoleViewer may only read.
	RoleViewer = "viewer"
)

// ValidRoles lists all valid roles.
var ValidRoles = []string{RoleOperator, RoleViewer}

// ValidRole reports whether role is known.
func ValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// readOnlyPosts are POST routes that compute without changing state.
var readOnlyPosts = []string{"/api/calc/"}

// CheckPermission reports whether role may call method on path.
func CheckPermission(role, method, path string) bool {
	switch role {
	case RoleOperator:
		return true
	case RoleViewer:
		if method == http.MethodGet || method == http.MethodHead {
			return true
		}
		if method == http.MethodPost {
			for _, prefix := range readOnlyPosts {
				if strings.HasPrefix(path, prefix) {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}
